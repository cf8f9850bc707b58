package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/arkilian/metaquery/internal/api/http"
)

var (
	listenAddr   string
	drainTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve queries over HTTP until interrupted",
	Example: `  metaquery serve --config metaquery.yaml --listen :8081
  curl -s localhost:8081/v1/query -d '{"from": "people", "where": ["age > 30"]}'`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from http.addr)")
	serveCmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 30*time.Second, "How long to wait for requests on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.HTTP.Addr = listenAddr
	}

	application, logger, stop, err := startConfigured(ctx, cfg)
	if err != nil {
		return err
	}
	defer stop()

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
	}
	srv := httpapi.NewServer(cfg.HTTP, application, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", ln.Addr())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("draining HTTP server", zap.Duration("timeout", drainTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
