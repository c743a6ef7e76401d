// Package cmd implements the kas CLI commands.
package cmd

import (
	"fmt"

	"github.com/theirongolddev/kas/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", config.Path())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [Remote]")
	fmt.Printf("    Base URL:  %s\n", apiURL(cfg))
	fmt.Printf("    Timeout:   %s\n", requestTimeout(cfg))
	fmt.Println()

	fmt.Println("  [Ledger]")
	fmt.Printf("    Debounce:  %s\n", cfg.Ledger.Debounce())
	fmt.Println()

	fmt.Println("  [Cache]")
	if cfg.Cache.Disabled || flagNoCache {
		fmt.Println("    Disabled")
	} else {
		fmt.Printf("    Path:      %s\n", cachePath(cfg))
	}
	fmt.Println()

	fmt.Println("  [Server]")
	fmt.Printf("    Address:   http://%s\n", cfg.Server.Addr)
	fmt.Printf("    Events:    %d retained\n", cfg.Server.EventsBuffer)
	fmt.Println()

	fmt.Println("  [Store]")
	fmt.Printf("    Driver:    %s\n", cfg.Store.Driver)
	fmt.Printf("    DSN:       %s\n", maskDSN(storeDSN(cfg)))
	fmt.Printf("    Address:   http://%s\n", cfg.Store.Addr)
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme:     %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  Run `kas setup` to reconfigure.")
	return nil
}
