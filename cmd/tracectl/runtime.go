package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/emperorhan/recycle-trace/internal/app"
	"github.com/emperorhan/recycle-trace/internal/config"
	"github.com/emperorhan/recycle-trace/internal/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// loadConfig applies --config before reading the environment.
func loadConfig() (*config.Config, error) {
	if rootFlags.configFile != "" {
		if err := os.Setenv(config.ConfigFileEnv, rootFlags.configFile); err != nil {
			return nil, fmt.Errorf("set %s: %w", config.ConfigFileEnv, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// withApp builds the application for one command and tears it down after fn
// returns. Logs go to stderr so stdout stays parseable.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := initTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close error", "error", err)
		}
	}()
	return fn(ctx, a)
}

func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	shutdown, err := tracing.Init(ctx, tracing.Config{
		ServiceName: "tracectl",
		Version:     version,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}
	return shutdown, nil
}

// ensureConnected reuses a restored session or connects, unless --no-connect
// is set.
func ensureConnected(ctx context.Context, a *app.App) (common.Address, error) {
	if addr, ok := a.Session.Address(); ok {
		return addr, nil
	}
	if rootFlags.noConnect {
		return common.Address{}, fmt.Errorf("no wallet session; run `tracectl connect` first")
	}
	return a.Session.Connect(ctx)
}

func parseID(kind, raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s id must be a non-negative integer, got %q", kind, raw)
	}
	return id, nil
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}
