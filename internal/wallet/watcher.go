package wallet

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
)

const watcherDefaultInterval = 4 * time.Second

// Watcher polls eth_accounts and eth_chainId and turns differences into
// session notifications.
type Watcher struct {
	session  *Session
	provider ledger.Provider
	logger   *slog.Logger
	interval time.Duration

	lastAccounts []common.Address
	seeded       bool
}

func NewWatcher(session *Session, provider ledger.Provider, logger *slog.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = watcherDefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		session:  session,
		provider: provider,
		logger:   logger.With("component", "wallet_watcher"),
		interval: interval,
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("wallet watcher started", "poll_interval", w.interval)

	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("wallet watcher stopping")
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	chainID, err := w.provider.ChainID(ctx)
	if err != nil {
		w.fail("chain id poll failed", err)
		return
	}
	if known := w.session.ChainID(); known != 0 && known != chainID {
		w.session.HandleChainChanged(chainID)
	}

	if w.session.signer != nil {
		return
	}
	accounts, err := w.provider.Accounts(ctx)
	if err != nil {
		w.fail("accounts poll failed", err)
		return
	}
	changed := w.seeded && !slices.Equal(accounts, w.lastAccounts)
	w.lastAccounts = accounts
	w.seeded = true
	if !changed {
		return
	}
	if _, connected := w.session.Address(); !connected {
		// Accounts appearing is not a connect, and there is nothing to drop.
		return
	}
	if err := w.session.HandleAccountsChanged(ctx, accounts); err != nil {
		w.fail("apply accounts change failed", err)
	}
}

func (w *Watcher) fail(msg string, err error) {
	if ledger.Classify(err).Kind == ledger.KindCanceled {
		return
	}
	w.logger.Warn(msg, "error", err)
	metrics.SessionWatcherErrors.Inc()
}
