package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/theirongolddev/kas/internal/cli"
	"github.com/theirongolddev/kas/internal/ledger"
	"github.com/theirongolddev/kas/internal/model"

	"github.com/spf13/cobra"
)

var (
	addSource string
	addAmount string
	addDesc   string
	addDate   string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a transaction",
}

func newAddTypeCmd(t model.TxType, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(t) + " [amount]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := addAmount
			if len(args) == 1 {
				raw = args[0]
			}
			return recordTransaction(cmd.Context(), t, addSource, raw, addDesc, addDate)
		},
	}
}

func init() {
	for _, c := range []*cobra.Command{
		newAddTypeCmd(model.Income, "Record money coming in"),
		newAddTypeCmd(model.Expense, "Record money going out"),
	} {
		c.Flags().StringVarP(&addSource, "source", "s", "pool", "pool, or a member id/name")
		c.Flags().StringVarP(&addAmount, "amount", "a", "", "Amount in rupiah (e.g. 150000 or 150.000)")
		c.Flags().StringVarP(&addDesc, "desc", "d", "", "Description")
		c.Flags().StringVar(&addDate, "date", "", "Day of the transaction (YYYY-MM-DD, default today)")
		addCmd.AddCommand(c)
	}
	rootCmd.AddCommand(addCmd)
}

// recordTransaction applies one transaction and waits for the store to
// confirm it.
func recordTransaction(ctx context.Context, t model.TxType, sourceRef, rawAmount, desc, date string) error {
	if strings.TrimSpace(rawAmount) == "" {
		return errors.New("amount is required")
	}
	amount := cli.ParseAmount(rawAmount)

	if date != "" {
		day, err := cli.ParseDate(date)
		if err != nil {
			return err
		}
		date = day
	} else {
		date = cli.Today()
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := s.requireRemote(); err != nil {
		return err
	}

	st := s.engine.State()
	src, err := resolveSource(st, sourceRef)
	if err != nil {
		return err
	}

	p, err := s.engine.ApplyTransaction(ctx, ledger.Intent{
		Type:   t,
		Source: src,
		Amount: amount,
		Desc:   desc,
		Date:   date,
	})
	if err != nil {
		return describeWriteError(err)
	}
	if err := p.Wait(ctx); err != nil {
		return describeWriteError(err)
	}

	after := s.engine.State()
	fmt.Printf("  Recorded %s %s on %s (%s)\n",
		t, cli.FormatIDR(amount), after.SourceLabel(src), p.TxID())
	fmt.Printf("  %s balance: %s\n", after.SourceLabel(src), cli.FormatIDR(after.SourceBalance(src)))
	return nil
}
