package cmd

import (
	"fmt"

	"github.com/theirongolddev/kas/internal/cli"
	"github.com/theirongolddev/kas/internal/model"
	"github.com/theirongolddev/kas/internal/pipeline"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"log"},
	Short:   "Transaction history, newest first",
	RunE:    runHistory,
}

var (
	historyTab    string
	historyType   string
	historySearch string
	historyFrom   string
	historyTo     string
	historyLimit  int
)

func init() {
	historyCmd.Flags().StringVarP(&historyTab, "tab", "t", pipeline.TabAll, "all, pool, or a member id/name")
	historyCmd.Flags().StringVar(&historyType, "type", "", "Only income or expense")
	historyCmd.Flags().StringVarP(&historySearch, "search", "s", "", "Match description or source (case-insensitive)")
	historyCmd.Flags().StringVar(&historyFrom, "from", "", "First day to include (YYYY-MM-DD)")
	historyCmd.Flags().StringVar(&historyTo, "to", "", "Last day to include (YYYY-MM-DD)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Number of transactions to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	f := pipeline.Filter{
		Tab:   historyTab,
		Type:  model.TxType(historyType),
		Query: historySearch,
	}
	if historyType != "" && !f.Type.Valid() {
		return fmt.Errorf("unknown type %q (want income or expense)", historyType)
	}
	for _, d := range []struct {
		in  string
		out *string
	}{{historyFrom, &f.From}, {historyTo, &f.To}} {
		if d.in == "" {
			continue
		}
		day, err := cli.ParseDate(d.in)
		if err != nil {
			return err
		}
		*d.out = day
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	st := s.engine.State()
	if f.Tab != pipeline.TabAll && f.Tab != pipeline.TabPool {
		m, ok := st.ResolveMember(f.Tab)
		if !ok {
			return fmt.Errorf("no member matches %q", f.Tab)
		}
		f.Tab = m.ID
	}

	txs := pipeline.History(st, f)
	if len(txs) == 0 {
		fmt.Println("\n  No transactions found.")
		return nil
	}

	total := len(txs)
	if historyLimit > 0 && len(txs) > historyLimit {
		txs = txs[:historyLimit]
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("HISTORY  %s (showing %d of %s)",
		tabLabel(st, f.Tab), len(txs), formatNumber(int64(total)))))
	fmt.Println()

	rows := make([][]string, 0, len(txs))
	for _, t := range txs {
		amount := cli.FormatSigned(t.Type, t.Amount)
		if t.Type == model.Income {
			amount = cli.RenderIncome(amount)
		} else {
			amount = cli.RenderExpense(amount)
		}
		desc := t.Desc
		if desc == "" {
			desc = cli.RenderMuted("-")
		}
		rows = append(rows, []string{
			t.Date,
			desc,
			st.SourceLabel(t.Source),
			amount,
			cli.RenderMuted(t.ID),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers:  []string{"Date", "Description", "Source", "Amount", "ID"},
		Rows:     rows,
		LeftCols: 3,
	}))
	fmt.Println()
	return nil
}

func tabLabel(st model.AppState, tab string) string {
	switch tab {
	case pipeline.TabAll, "":
		return "All"
	case pipeline.TabPool:
		return "Pool"
	}
	return st.SourceLabel(model.PersonalSource(tab))
}
