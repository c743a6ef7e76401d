package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theirongolddev/kas/internal/cli"
	"github.com/theirongolddev/kas/internal/config"
	"github.com/theirongolddev/kas/internal/ledger"
	"github.com/theirongolddev/kas/internal/model"
	"github.com/theirongolddev/kas/internal/pipeline"
	"github.com/theirongolddev/kas/internal/remote"
	"github.com/theirongolddev/kas/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagAPIURL  string
	flagNoCache bool
	flagQuiet   bool
	flagTimeout time.Duration
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kas",
	Short: "Shared-pool expense ledger",
	Long:  "Track a shared cash pool and each member's personal balance against a REST store.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelInfo
		}
		setLogLevel(level)
	},
	RunE:          runStatus,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "REST store base URL (overrides config and KAS_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "Skip the local snapshot cache")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "Per-request timeout for the REST store")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log at info level")
}

func setLogLevel(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// session bundles everything a command needs to read and write the ledger.
type session struct {
	cfg    config.Config
	client *remote.Client
	engine *ledger.Engine
	cache  *store.Cache
	mirror *store.Mirror
	origin ledger.Origin
}

func apiURL(cfg config.Config) string {
	if flagAPIURL != "" {
		return flagAPIURL
	}
	return config.GetAPIURL(cfg)
}

func requestTimeout(cfg config.Config) time.Duration {
	if flagTimeout > 0 {
		return flagTimeout
	}
	return cfg.Remote.Timeout()
}

func cachePath(cfg config.Config) string {
	if cfg.Cache.Path != "" {
		return cfg.Cache.Path
	}
	return pipeline.CachePath()
}

// newSession wires the client, cache mirror and engine without loading any
// state. alert receives writes the store rejected.
func newSession(cfg config.Config, alert func(error)) *session {
	timeout := requestTimeout(cfg)
	s := &session{
		cfg:    cfg,
		client: remote.NewClient(apiURL(cfg), remote.WithTimeout(timeout)),
	}

	if !flagNoCache && !cfg.Cache.Disabled {
		cache, err := store.Open(cachePath(cfg))
		if err != nil {
			slog.Warn("cache unavailable", "path", cachePath(cfg), "error", err)
			if !flagQuiet {
				fmt.Fprintf(os.Stderr, "  Cache unavailable, continuing without it\n")
			}
		} else {
			s.cache = cache
			s.mirror = store.NewMirror(cache, 4)
			s.mirror.Start()
		}
	}

	s.engine = ledger.New(s.client,
		ledger.WithDebounce(cfg.Ledger.Debounce()),
		ledger.WithTimeout(timeout),
		ledger.WithAlert(alert),
	)
	if s.mirror != nil {
		s.engine.Subscribe(s.mirror.Push)
	}
	return s
}

// snapshotter returns the cache as a ledger.Snapshotter, or nil without one.
func (s *session) snapshotter() ledger.Snapshotter {
	if s.cache == nil {
		return nil
	}
	return s.cache
}

// openSession is the shared loading path used by all ledger commands. The
// store is tried first, then the local cache, then the default state.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	s := newSession(cfg, func(err error) {
		fmt.Fprintf(os.Stderr, "  %s\n", cli.RenderWarning(err.Error()))
	})

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Loading ledger from %s...\n", s.client.BaseURL())
	}

	s.origin, err = s.engine.Hydrate(ctx, s.client, s.snapshotter())
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	if !flagQuiet {
		switch s.origin {
		case ledger.OriginCache:
			msg := "Store unreachable, showing cached state"
			if at, ok := s.cache.SavedAt(); ok {
				msg += " from " + at.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(os.Stderr, "  %s\n", cli.RenderWarning(msg))
		case ledger.OriginDefault:
			fmt.Fprintf(os.Stderr, "  %s\n", cli.RenderWarning("Store unreachable and no cache, showing defaults"))
		}
	}
	return s, nil
}

// Close flushes pending edits, then stops the cache mirror.
func (s *session) Close() error {
	err := s.engine.Close()
	if s.mirror != nil {
		s.mirror.Shutdown()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	return err
}

// requireRemote refuses writes when the ledger was not loaded from the store:
// the local ids would not match anything there.
func (s *session) requireRemote() error {
	if s.origin != ledger.OriginRemote {
		return fmt.Errorf("store at %s is unreachable; not writing against %s state", s.client.BaseURL(), s.origin)
	}
	return nil
}

// resolveSource turns "pool" or a member id/name into a Source.
func resolveSource(st model.AppState, ref string) (model.Source, error) {
	if ref == "" || ref == string(model.SourcePool) {
		return model.PoolSource(), nil
	}
	m, ok := st.ResolveMember(ref)
	if !ok {
		return model.Source{}, fmt.Errorf("%w: %q", ledger.ErrMemberNotFound, ref)
	}
	return model.PersonalSource(m.ID), nil
}

// describeWriteError renders ledger errors for the terminal.
func describeWriteError(err error) error {
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return errors.New("insufficient funds in that source")
		case errors.Is(err, ledger.ErrInvalidAmount):
			return errors.New("amount must be greater than zero")
		}
		return verr
	}
	var perr *ledger.PersistenceError
	if errors.As(err, &perr) {
		return fmt.Errorf("store rejected the change, local state rolled back: %w", perr.Err)
	}
	return err
}

func formatNumber(n int64) string {
	return cli.FormatNumber(n)
}
