package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aixgo-dev/searchflow/internal/observability"
	"github.com/aixgo-dev/searchflow/internal/server"
	metrics "github.com/aixgo-dev/searchflow/pkg/observability"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search event stream over HTTP",
		Long: `Starts the HTTP server:

  GET /search?query=...              server-sent progress events
  GET /runs                          recent runs
  GET /runs/{id}/history?limit=N     messages exchanged during a run
  GET /runs/{id}/stages/{name}       stage state
  GET /metrics, /health              observability`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				c.cfg.Server.Addr = addr
			}
			return c.runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func (c *cli) runServe(ctx context.Context) error {
	logger := c.logger

	metrics.InitMetrics()
	metrics.SetVersion(Version)
	if err := observability.Init(c.cfg.Observability, logger); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	a, err := newApp(c.cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.close(c.cfg.Server.ShutdownTimeout)

	health := metrics.InitHealthChecker()
	health.RegisterCheck(metrics.PingCheck())
	health.RegisterCheck(metrics.RunnerCheck(a.runner.Ready))
	if ping := a.cachePing(); ping != nil {
		health.RegisterCheck(metrics.CacheCheck(ping))
	}
	logger.Debug("health checks registered", zap.Strings("checks", health.Names()))

	srv := server.New(a.runner, c.cfg.Server, server.WithLogger(logger))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ticker.C:
			metrics.CollectRuntimeStats()
			logger.Debug("runner load",
				zap.Int("running", a.runner.Running()),
				zap.Int("queued", a.runner.Queued()))
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http server shutdown", zap.Error(err))
			}
			return nil
		}
	}
}
