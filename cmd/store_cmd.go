package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/theirongolddev/kas/internal/config"
	"github.com/theirongolddev/kas/internal/docstore"
	"github.com/theirongolddev/kas/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	flagStoreAddr   string
	flagStoreDriver string
	flagStoreDSN    string
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Run the reference REST store (pool, members, transactions)",
	RunE:  runStore,
}

func init() {
	storeCmd.Flags().StringVar(&flagStoreAddr, "addr", "", "HTTP listen address (default from config)")
	storeCmd.Flags().StringVar(&flagStoreDriver, "driver", "", "sqlite or postgres (default from config)")
	storeCmd.Flags().StringVar(&flagStoreDSN, "dsn", "", "Database file or connection string (overrides KAS_STORE_DSN)")
	rootCmd.AddCommand(storeCmd)
}

func storeDSN(cfg config.Config) string {
	if flagStoreDSN != "" {
		return flagStoreDSN
	}
	if dsn := config.GetStoreDSN(cfg); dsn != "" {
		return dsn
	}
	return pipeline.StorePath()
}

// maskDSN hides the password in URL-style connection strings.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

func runStore(cmd *cobra.Command, _ []string) error {
	setLogLevel(slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	driver := cfg.Store.Driver
	if flagStoreDriver != "" {
		driver = flagStoreDriver
	}
	addr := cfg.Store.Addr
	if flagStoreAddr != "" {
		addr = flagStoreAddr
	}
	dsn := storeDSN(cfg)

	st, err := docstore.Open(driver, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	srv := &http.Server{
		Addr:              addr,
		Handler:           st.Handler(slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	fmt.Printf("  kas store listening on http://%s\n", addr)
	fmt.Printf("  Backend: %s (%s)\n", driver, maskDSN(dsn))

	select {
	case <-cmd.Context().Done():
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errCh:
		return fmt.Errorf("store http server: %w", err)
	}
}
