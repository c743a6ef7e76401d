package cmd

import (
	"fmt"

	"github.com/theirongolddev/kas/internal/cli"

	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Overwrite balances directly",
}

var setPoolCmd = &cobra.Command{
	Use:   "pool <amount>",
	Short: "Set the pool balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetPool,
}

func init() {
	setCmd.AddCommand(setPoolCmd)
	rootCmd.AddCommand(setCmd)
}

func runSetPool(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	if err := s.requireRemote(); err != nil {
		_ = s.Close()
		return err
	}

	s.engine.SetPoolBalance(cli.ParseAmount(args[0]))
	if err := s.Close(); err != nil {
		return err
	}
	fmt.Printf("  Pool balance set to %s\n", cli.FormatIDR(s.engine.State().Pool))
	return nil
}
