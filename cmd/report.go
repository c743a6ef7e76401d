package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/theirongolddev/kas/internal/cli"
	"github.com/theirongolddev/kas/internal/model"
	"github.com/theirongolddev/kas/internal/pipeline"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a markdown statement of balances and recent activity",
	RunE:  runReport,
}

var (
	reportRaw    bool
	reportRecent int
	reportWidth  int
)

func init() {
	reportCmd.Flags().BoolVar(&reportRaw, "raw", false, "Print the markdown source instead of rendering it")
	reportCmd.Flags().IntVar(&reportRecent, "recent", 10, "Number of recent transactions to include")
	reportCmd.Flags().IntVar(&reportWidth, "width", 100, "Word-wrap width")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	md := buildReport(s.engine.State(), cli.Today(), reportRecent)
	if reportRaw {
		fmt.Print(md)
		return nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(reportWidth),
	)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	_, err = fmt.Fprint(os.Stdout, out)
	return err
}

// buildReport writes the statement as markdown.
func buildReport(st model.AppState, today string, recent int) string {
	sum := pipeline.Summarize(st)

	var b strings.Builder
	fmt.Fprintf(&b, "# Kas Bareng statement\n\n")
	fmt.Fprintf(&b, "_As of %s_\n\n", today)

	b.WriteString("## Balances\n\n")
	b.WriteString("| Source | Balance | In | Out | Transactions |\n")
	b.WriteString("|---|--:|--:|--:|--:|\n")
	for _, src := range sum.Sources {
		label := src.Label
		if src.Dangling {
			label += " (removed member)"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d |\n",
			escapeCell(label),
			cli.FormatIDR(src.Balance),
			cli.FormatIDR(src.Income),
			cli.FormatIDR(src.Expense),
			src.TxCount)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- **Total personal:** %s\n", cli.FormatIDR(sum.TotalPersonal))
	fmt.Fprintf(&b, "- **Grand total:** %s\n", cli.FormatIDR(sum.GrandTotal))
	fmt.Fprintf(&b, "- **Recorded flows:** %s in, %s out\n\n",
		cli.FormatIDR(sum.TotalIncome), cli.FormatIDR(sum.TotalExpense))

	txs := pipeline.History(st, pipeline.Filter{Tab: pipeline.TabAll})
	b.WriteString("## Recent transactions\n\n")
	if len(txs) == 0 {
		b.WriteString("No transactions recorded.\n")
		return b.String()
	}
	if recent > 0 && len(txs) > recent {
		txs = txs[:recent]
	}
	b.WriteString("| Date | Description | Source | Amount |\n")
	b.WriteString("|---|---|---|--:|\n")
	for _, t := range txs {
		desc := t.Desc
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			t.Date,
			escapeCell(desc),
			escapeCell(st.SourceLabel(t.Source)),
			cli.FormatSigned(t.Type, t.Amount))
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
