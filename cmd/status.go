package cmd

import (
	"fmt"

	"github.com/theirongolddev/kas/internal/cli"
	"github.com/theirongolddev/kas/internal/model"
	"github.com/theirongolddev/kas/internal/pipeline"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pool and member balances",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	sum := pipeline.Summarize(s.engine.State())

	fmt.Println()
	fmt.Println(cli.RenderTitle("KAS BARENG"))
	fmt.Println()

	rows := make([][]string, 0, len(sum.Sources)+3)
	for _, src := range sum.Sources {
		if src.Dangling {
			continue
		}
		rows = append(rows, []string{
			src.Label,
			cli.FormatIDR(src.Balance),
			cli.RenderIncome(cli.FormatIDR(src.Income)),
			cli.RenderExpense(cli.FormatIDR(src.Expense)),
		})
		if src.Source.Kind == model.SourcePool && len(sum.Sources) > 1 {
			rows = append(rows, []string{"---"})
		}
	}
	rows = append(rows,
		[]string{"---"},
		[]string{"Total personal", cli.FormatIDR(sum.TotalPersonal), "", ""},
		[]string{"Grand total", cli.FormatIDR(sum.GrandTotal), "", ""},
	)

	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Balances",
		Headers: []string{"Source", "Balance", "In", "Out"},
		Rows:    rows,
	}))

	fmt.Printf("  %s  %s\n",
		cli.FormatCount(sum.TxCount, "transaction"),
		cli.RenderMuted(fmt.Sprintf("(loaded from %s)", s.origin)))
	fmt.Println()
	return nil
}
