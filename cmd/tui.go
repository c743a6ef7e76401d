package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/theirongolddev/kas/internal/config"
	"github.com/theirongolddev/kas/internal/pipeline"
	"github.com/theirongolddev/kas/internal/tui"
	"github.com/theirongolddev/kas/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive TUI dashboard",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	theme.SetActive(cfg.Appearance.Theme)

	// Force TrueColor profile so all background styling produces ANSI codes
	// Without this, lipgloss may default to Ascii profile (no colors)
	lipgloss.SetColorProfile(termenv.TrueColor)

	// The alt screen owns the terminal; logs go to a file instead.
	logFile, err := openTUILog()
	if err != nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	} else {
		defer logFile.Close()
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelInfo
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level})))
	}

	alerts := make(chan error, 16)
	s := newSession(cfg, func(err error) {
		select {
		case alerts <- err:
		default:
			slog.Warn("alert dropped, dashboard busy", "error", err)
		}
	})

	// Show what the session actually talks to.
	cfg.Remote.BaseURL = s.client.BaseURL()
	cfg.Cache.Path = cachePath(cfg)
	cfg.Cache.Disabled = s.cache == nil

	app := tui.NewApp(tui.Options{
		Engine:  s.engine,
		Fetcher: s.client,
		Cache:   s.snapshotter(),
		Alerts:  alerts,
		Config:  cfg,
	})
	p := tea.NewProgram(app, tea.WithAltScreen())

	_, runErr := p.Run()

	// Writes still in flight or waiting out the debounce are sent now.
	if err := s.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "  Some edits were not saved: %v\n", err)
	}
	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}

func openTUILog() (*os.File, error) {
	dir := pipeline.DataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "tui.log"), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
}
