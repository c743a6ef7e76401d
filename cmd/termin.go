package cmd

import (
	"strconv"

	"github.com/theirongolddev/kas/internal/model"

	"github.com/spf13/cobra"
)

const terminAmount = 4_000_000

var terminCmd = &cobra.Command{
	Use:   "termin [amount]",
	Short: "Record an installment payment into the pool",
	Long:  "Shortcut for `kas add income --source pool --desc Termin`, defaulting to Rp 4.000.000.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTermin,
}

var terminDate string

func init() {
	terminCmd.Flags().StringVar(&terminDate, "date", "", "Day of the payment (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(terminCmd)
}

func runTermin(cmd *cobra.Command, args []string) error {
	raw := strconv.Itoa(terminAmount)
	if len(args) == 1 {
		raw = args[0]
	}
	return recordTransaction(cmd.Context(), model.Income, string(model.SourcePool), raw, "Termin", terminDate)
}
