// Package app assembles the ledger client, the wallet session and the
// services on top of them from a loaded Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emperorhan/recycle-trace/internal/accessmanager"
	"github.com/emperorhan/recycle-trace/internal/alert"
	"github.com/emperorhan/recycle-trace/internal/api"
	"github.com/emperorhan/recycle-trace/internal/circuitbreaker"
	"github.com/emperorhan/recycle-trace/internal/config"
	"github.com/emperorhan/recycle-trace/internal/dashboard"
	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/ledger/contract"
	"github.com/emperorhan/recycle-trace/internal/ledger/rpc"
	"github.com/emperorhan/recycle-trace/internal/store"
	"github.com/emperorhan/recycle-trace/internal/store/memory"
	"github.com/emperorhan/recycle-trace/internal/store/postgres"
	redispkg "github.com/emperorhan/recycle-trace/internal/store/redis"
	"github.com/emperorhan/recycle-trace/internal/traceability"
	"github.com/emperorhan/recycle-trace/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var (
	newRedisSessionStore = func(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (store.SessionStore, error) {
		return redispkg.NewSessionStore(ctx, cfg.URL, cfg.Namespace, ttl)
	}
	openJournalDB = func(ctx context.Context, cfg config.DBConfig) (*postgres.DB, error) {
		return postgres.New(ctx, postgres.Config{
			URL:                cfg.URL,
			MaxOpenConns:       cfg.MaxOpenConns,
			MaxIdleConns:       cfg.MaxIdleConns,
			ConnMaxLifetime:    cfg.ConnMaxLifetime,
			StatementTimeoutMS: cfg.StatementTimeoutMS,
		})
	}
)

// App owns every long-lived component. Close releases them.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	Provider  ledger.Provider
	Session   *wallet.Session
	Accounts  *accessmanager.Service
	Tokens    *traceability.Service
	Dashboard *dashboard.Builder
	Journal   ledger.Journal

	signer        ledger.Signer
	db            *postgres.DB
	accessAddress common.Address
	traceAddress  common.Address

	mu       sync.Mutex
	bindings int

	unsubscribe func()
	closers     []func() error
}

// New builds the component graph and binds both contracts. A persisted
// session is restored when the endpoint still exposes its account.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		cfg:           cfg,
		logger:        logger,
		accessAddress: common.HexToAddress(cfg.Ledger.AccessManagerAddress),
		traceAddress:  common.HexToAddress(cfg.Ledger.TraceabilityAddress),
		Journal:       ledger.NopJournal{},
	}

	alerter, alerting := newAlerter(cfg.Alert, logger)
	breakerHook := alert.NewBreakerHook(alerter, cfg.Ledger.RPCURL, logger)

	a.Provider = ledger.NewGuard(rpc.NewClient(cfg.Ledger.RPCURL, logger, rpc.WithTimeout(cfg.Ledger.RPCTimeout)), cfg.Ledger.RPCURL,
		ledger.WithGuardLogger(logger),
		ledger.WithRateLimit(cfg.Ledger.RateLimitRPS, cfg.Ledger.RateLimitBurst),
		ledger.WithBreaker(circuitbreaker.Config{
			FailureThreshold: cfg.Ledger.BreakerFailures,
			OpenTimeout:      cfg.Ledger.BreakerOpenTimeout,
			OnStateChange:    breakerHook.OnStateChange,
		}),
	)

	if key := strings.TrimSpace(cfg.Ledger.PrivateKey); key != "" {
		signer, err := ledger.NewKeySigner(key)
		if err != nil {
			return nil, fmt.Errorf("load signer: %w", err)
		}
		a.signer = signer
		logger.Info("local signer configured", "address", signer.Address().Hex())
	}

	if err := a.openJournal(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if alerting {
		a.Journal = alert.NewJournal(a.Journal, alerter, logger)
	}

	st, err := a.sessionStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	sessionOpts := []wallet.Option{wallet.WithLogger(logger)}
	if a.signer != nil {
		sessionOpts = append(sessionOpts, wallet.WithSigner(a.signer))
	}
	a.Session = wallet.NewSession(a.Provider, st, sessionOpts...)
	a.Accounts = accessmanager.NewService(a.Session,
		accessmanager.WithCache(cfg.Cache.AccountSize, cfg.Cache.AccountTTL),
		accessmanager.WithLogger(logger),
	)
	a.Tokens = traceability.NewService(a.Session, logger)
	a.Dashboard = dashboard.NewBuilder(a.Accounts, a.Tokens, logger)

	// Registered after the services so their unbind runs before the rebind.
	a.unsubscribe = a.Session.Subscribe(func(ev wallet.Event) {
		if ev.Kind != wallet.EventChainChanged {
			return
		}
		if err := a.bind(); err != nil {
			a.logger.Error("failed to rebind contracts", "chain_id", ev.ChainID, "error", err)
		}
	})

	if err := a.bind(); err != nil {
		a.Close()
		return nil, err
	}

	if addr, ok, err := a.Session.Restore(ctx); err != nil {
		logger.Warn("failed to restore wallet session", "error", err)
	} else if ok {
		logger.Info("resumed wallet session", "address", addr.Hex())
	}
	return a, nil
}

// bind attaches fresh contract bindings. The transactor is rebuilt too so
// transactions are signed for the current chain.
func (a *App) bind() error {
	txOpts := []ledger.TransactorOption{
		ledger.WithJournal(a.Journal),
		ledger.WithPollInterval(a.cfg.Ledger.ReceiptPollInterval),
		ledger.WithTransactorLogger(a.logger),
	}
	if a.signer != nil {
		txOpts = append(txOpts, ledger.WithSigner(a.signer))
	}
	tx := ledger.NewTransactor(a.Provider, txOpts...)

	bindOpts := []contract.Option{
		contract.WithFromBlock(a.cfg.Ledger.FromBlock),
		contract.WithLogger(a.logger),
	}
	access, err := contract.NewAccessManager(a.accessAddress, a.Provider, tx, bindOpts...)
	if err != nil {
		return fmt.Errorf("bind access manager: %w", err)
	}
	trace, err := contract.NewTraceability(a.traceAddress, a.Provider, tx, bindOpts...)
	if err != nil {
		return fmt.Errorf("bind traceability: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Accounts.Bind(access)
	a.Tokens.Bind(trace)
	a.bindings++
	a.logger.Debug("contracts bound",
		"access_manager", a.accessAddress.Hex(),
		"traceability", a.traceAddress.Hex(),
		"generation", a.bindings,
	)
	return nil
}

func (a *App) openJournal(ctx context.Context) error {
	if strings.TrimSpace(a.cfg.DB.URL) == "" {
		return nil
	}
	db, err := openJournalDB(ctx, a.cfg.DB)
	if err != nil {
		return fmt.Errorf("connect journal database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if err := db.RunMigrations(ctx, postgres.Migrations()); err != nil {
		return fmt.Errorf("migrate journal database: %w", err)
	}
	a.db = db
	a.Journal = postgres.NewJournalRepo(db)
	a.logger.Info("transaction journal enabled")
	return nil
}

// newAlerter reports false when no channel is configured.
func newAlerter(cfg config.AlertConfig, logger *slog.Logger) (alert.Alerter, bool) {
	var channels []alert.Alerter
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	if len(channels) == 0 {
		return &alert.NoopAlerter{}, false
	}
	logger.Info("operator alerts enabled", "channels", len(channels), "cooldown", cfg.Cooldown)
	return alert.NewMultiAlerter(cfg.Cooldown, logger, channels...), true
}

func (a *App) sessionStore(ctx context.Context) (store.SessionStore, error) {
	switch a.cfg.Session.Backend {
	case config.SessionBackendRedis:
		st, err := newRedisSessionStore(ctx, a.cfg.Redis, a.cfg.Session.TTL)
		if err != nil {
			return nil, fmt.Errorf("initialize redis session store: %w", err)
		}
		if c, ok := st.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
		a.logger.Info("redis session store enabled", "namespace", a.cfg.Redis.Namespace)
		return st, nil
	case config.SessionBackendMemory, "":
		return memory.NewSessionStore(), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q", a.cfg.Session.Backend)
	}
}

// Handler is the HTTP API with audit logging and per-client rate limits.
// The returned stop func releases the limiter's cleanup goroutine.
func (a *App) Handler() (http.Handler, func()) {
	server := api.NewServer(a.Session, a.Accounts, a.Tokens, a.Dashboard, a.logger, api.WithJournal(a.Journal))
	limiter := api.NewRateLimitMiddleware(a.logger,
		api.WithWritesPerMinute(a.cfg.Server.WritesPerMinute),
		api.WithTrustProxy(a.cfg.Server.TrustProxy),
	)
	return api.AuditMiddleware(a.logger, limiter.Wrap(server.Handler())), limiter.Stop
}

// Serve runs the HTTP API, the wallet watcher and the pool stats pump until
// ctx is done or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	handler, stop := a.Handler()
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHTTPServer(gCtx, a.cfg.Server.Addr, handler, a.logger)
	})

	watcher := wallet.NewWatcher(a.Session, a.Provider, a.logger, a.cfg.Ledger.WatchInterval)
	g.Go(func() error {
		return watcher.Run(gCtx)
	})

	if a.db != nil {
		g.Go(func() error {
			postgres.RunPoolStats(gCtx, a.db, a.cfg.DB.PoolStatsInterval, a.logger)
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close detaches the services and releases stores in reverse order.
func (a *App) Close() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.Tokens != nil {
		a.Tokens.Close()
	}
	if a.Accounts != nil {
		a.Accounts.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("api server shutdown error", "error", err)
		}
	}()

	logger.Info("api server started", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}
