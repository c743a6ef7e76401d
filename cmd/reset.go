package cmd

import (
	"fmt"

	"github.com/theirongolddev/kas/internal/config"
	"github.com/theirongolddev/kas/internal/model"
	"github.com/theirongolddev/kas/internal/store"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Overwrite the local cache with the default ledger",
	Long:  "Replaces the offline snapshot with the default pool and members, or deletes it with --clear. The REST store is not touched.",
	RunE:  runReset,
}

var (
	resetYes   bool
	resetClear bool
)

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
	resetCmd.Flags().BoolVar(&resetClear, "clear", false, "Delete the snapshot instead of writing defaults")
	rootCmd.AddCommand(resetCmd)
}

func runReset(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	path := cachePath(cfg)

	if !resetYes {
		confirmed := false
		err := huh.NewConfirm().
			Title("Reset the local cache?").
			Description(path).
			Affirmative("Reset").
			Negative("Cancel").
			Value(&confirmed).
			Run()
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("  Cancelled.")
			return nil
		}
	}

	cache, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	if err := resetCache(cache, resetClear); err != nil {
		return fmt.Errorf("resetting cache: %w", err)
	}
	if resetClear {
		fmt.Printf("  Local cache cleared (%s)\n", path)
	} else {
		fmt.Printf("  Local cache reset to defaults (%s)\n", path)
	}
	return nil
}

// resetCache either deletes the snapshot or overwrites it with defaults.
func resetCache(cache *store.Cache, remove bool) error {
	if remove {
		return cache.Clear()
	}
	cache.Save(model.DefaultState())
	return nil
}
