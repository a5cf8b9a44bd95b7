package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/emperorhan/recycle-trace/internal/app"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API, /metrics and /healthz",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address (overrides HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.addr != "" {
		cfg.Server.Addr = serveFlags.addr
		if err := cfg.ValidateListen(); err != nil {
			return err
		}
	}

	logger := newLogger(cfg.Log.Level, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("starting tracectl",
		"version", version,
		"rpc_url", cfg.Ledger.RPCURL,
		"access_manager", cfg.Ledger.AccessManagerAddress,
		"traceability", cfg.Ledger.TraceabilityAddress,
		"session_backend", cfg.Session.Backend,
		"journal_enabled", cfg.DB.URL != "",
		"addr", cfg.Server.Addr,
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	shutdownTracing, err := initTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Endpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Serve(gCtx)
	})
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tracectl exited with error", "error", err)
		return err
	}
	logger.Info("tracectl shut down gracefully")
	return nil
}
