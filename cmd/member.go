package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/theirongolddev/kas/internal/cli"

	"github.com/spf13/cobra"
)

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Manage members",
}

var memberSetCmd = &cobra.Command{
	Use:   "set <id|name>",
	Short: "Rename a member or overwrite their balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemberSet,
}

var memberAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a member to the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemberAdd,
}

var (
	memberName    string
	memberBalance string
)

func init() {
	memberSetCmd.Flags().StringVar(&memberName, "name", "", "New display name")
	memberSetCmd.Flags().StringVar(&memberBalance, "balance", "", "New balance in rupiah")
	memberAddCmd.Flags().StringVar(&memberBalance, "balance", "0", "Opening balance in rupiah")
	memberCmd.AddCommand(memberSetCmd, memberAddCmd)
	rootCmd.AddCommand(memberCmd)
}

func runMemberSet(cmd *cobra.Command, args []string) error {
	nameSet := cmd.Flags().Changed("name")
	balanceSet := cmd.Flags().Changed("balance")
	if !nameSet && !balanceSet {
		return errors.New("nothing to change: pass --name and/or --balance")
	}
	if nameSet && strings.TrimSpace(memberName) == "" {
		return errors.New("name cannot be empty")
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	if err := s.requireRemote(); err != nil {
		_ = s.Close()
		return err
	}

	m, ok := s.engine.State().ResolveMember(args[0])
	if !ok {
		_ = s.Close()
		return fmt.Errorf("no member matches %q", args[0])
	}
	if nameSet {
		if err := s.engine.SetMemberName(m.ID, strings.TrimSpace(memberName)); err != nil {
			_ = s.Close()
			return err
		}
	}
	if balanceSet {
		if err := s.engine.SetMemberBalance(m.ID, cli.ParseAmount(memberBalance)); err != nil {
			_ = s.Close()
			return err
		}
	}
	if err := s.Close(); err != nil {
		return err
	}

	updated, _ := s.engine.State().Member(m.ID)
	fmt.Printf("  %s: %s\n", updated.Name, cli.FormatIDR(updated.Balance))
	return nil
}

func runMemberAdd(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if name == "" {
		return errors.New("name cannot be empty")
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := s.requireRemote(); err != nil {
		return err
	}

	if _, ok := s.engine.State().ResolveMember(name); ok {
		return fmt.Errorf("a member named %q already exists", name)
	}

	m, err := s.client.CreateMember(cmd.Context(), name, cli.ParseAmount(memberBalance))
	if err != nil {
		return fmt.Errorf("creating member: %w", err)
	}
	fmt.Printf("  Added %s (%s) with %s\n", m.Name, m.ID, cli.FormatIDR(m.Balance))
	return nil
}
