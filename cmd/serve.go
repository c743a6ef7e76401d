package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/theirongolddev/kas/internal/cli"
	"github.com/theirongolddev/kas/internal/config"
	"github.com/theirongolddev/kas/internal/remote"
	"github.com/theirongolddev/kas/internal/server"

	"github.com/spf13/cobra"
)

var (
	flagServeAddr         string
	flagServeEventsBuffer int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the aggregation gateway (GET /state) with HTTP/SSE status endpoints",
	RunE:  runServe,
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe a running gateway",
	RunE:  runServeStatus,
}

func init() {
	serveCmd.PersistentFlags().StringVar(&flagServeAddr, "addr", "", "HTTP listen address (default from config)")
	serveCmd.Flags().IntVar(&flagServeEventsBuffer, "events-buffer", 0, "Max in-memory events retained (default from config)")
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func serveAddr(cfg config.Config) string {
	if flagServeAddr != "" {
		return flagServeAddr
	}
	return cfg.Server.Addr
}

func runServe(cmd *cobra.Command, _ []string) error {
	setLogLevel(slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	upstream := apiURL(cfg)
	buffer := cfg.Server.EventsBuffer
	if flagServeEventsBuffer > 0 {
		buffer = flagServeEventsBuffer
	}

	client := remote.NewClient(upstream, remote.WithTimeout(requestTimeout(cfg)))
	svc := server.New(server.Config{
		Addr:         serveAddr(cfg),
		EventsBuffer: buffer,
		Upstream:     upstream,
	}, client)

	fmt.Printf("  kas gateway listening on http://%s\n", serveAddr(cfg))
	fmt.Printf("  Reading from %s\n", upstream)

	if err := svc.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runServeStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	addr := serveAddr(cfg)
	fmt.Printf("  Address: http://%s\n", addr)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/v1/status", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("  API status: unreachable (%v)\n", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("  API status: HTTP %d\n", resp.StatusCode)
		return nil
	}

	var st server.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		fmt.Printf("  API status: malformed response (%v)\n", err)
		return nil
	}

	fmt.Printf("  Upstream: %s\n", st.Upstream)
	fmt.Printf("  Up since: %s\n", st.StartedAt.Local().Format(time.RFC3339))
	if st.LastFetchAt.IsZero() {
		fmt.Printf("  Last fetch: none yet\n")
	} else {
		fmt.Printf("  Last fetch: %s\n", st.LastFetchAt.Local().Format(time.RFC3339))
	}
	fmt.Printf("  Requests: %s (%s failed)\n", formatNumber(st.Requests), formatNumber(st.Failures))
	fmt.Printf("  Pool: %s\n", cli.FormatIDR(st.Last.Pool))
	fmt.Printf("  Grand total: %s\n", cli.FormatIDR(st.Last.GrandTotal))
	if st.LastError != "" {
		fmt.Printf("  Last error: %s\n", st.LastError)
	}
	return nil
}
