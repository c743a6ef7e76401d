package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/theirongolddev/kas/internal/config"
	"github.com/theirongolddev/kas/internal/tui/theme"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()

	baseURL := cfg.Remote.BaseURL
	timeout := strconv.Itoa(cfg.Remote.TimeoutSec)
	debounce := strconv.Itoa(cfg.Ledger.DebounceMS)
	useCache := !cfg.Cache.Disabled
	themeName := cfg.Appearance.Theme

	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, t := range theme.All {
		themeOpts = append(themeOpts, huh.NewOption(t.Name, t.Name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to kas").
				Description("Point kas at the REST store that holds the shared ledger."),
			huh.NewInput().
				Title("Store URL").
				Description("Base URL serving /pool, /members and /transactions").
				Value(&baseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Request timeout (seconds)").
				Value(&timeout).
				Validate(positiveInt),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Balance edit delay (ms)").
				Description("Direct balance edits are sent once typing pauses this long").
				Value(&debounce).
				Validate(positiveInt),
			huh.NewConfirm().
				Title("Keep an offline snapshot?").
				Description("Shows the last known ledger when the store is unreachable").
				Value(&useCache),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&themeName),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup cancelled, nothing saved.")
			return nil
		}
		return err
	}

	cfg.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	cfg.Remote.TimeoutSec, _ = strconv.Atoi(strings.TrimSpace(timeout))
	cfg.Ledger.DebounceMS, _ = strconv.Atoi(strings.TrimSpace(debounce))
	cfg.Cache.Disabled = !useCache
	cfg.Appearance.Theme = themeName

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.Path())
	fmt.Println("  Run `kas setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("enter a full URL like http://localhost:4000")
	}
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return errors.New("enter a whole number above zero")
	}
	return nil
}
