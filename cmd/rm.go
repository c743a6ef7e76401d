package cmd

import (
	"fmt"

	"github.com/theirongolddev/kas/internal/cli"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <tx id>",
	Short: "Delete a transaction and reverse its balance effect",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := s.requireRemote(); err != nil {
		return err
	}

	id := args[0]
	st := s.engine.State()
	i := st.TxIndex(id)
	if i < 0 {
		return fmt.Errorf("no transaction with id %q", id)
	}
	t := st.Transactions[i]

	p, err := s.engine.RemoveTransaction(ctx, id)
	if err != nil {
		return describeWriteError(err)
	}
	if err := p.Wait(ctx); err != nil {
		return describeWriteError(err)
	}

	after := s.engine.State()
	fmt.Printf("  Removed %s %s from %s on %s\n",
		t.Type, cli.FormatIDR(t.Amount), after.SourceLabel(t.Source), t.Date)
	fmt.Printf("  %s balance: %s\n", after.SourceLabel(t.Source), cli.FormatIDR(after.SourceBalance(t.Source)))
	return nil
}
