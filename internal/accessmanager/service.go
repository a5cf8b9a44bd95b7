// Package accessmanager exposes the access-manager contract as typed
// operations for the connected session.
package accessmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emperorhan/recycle-trace/internal/adapter"
	"github.com/emperorhan/recycle-trace/internal/cache"
	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/metrics"
	"github.com/emperorhan/recycle-trace/internal/store"
	"github.com/emperorhan/recycle-trace/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

const (
	methodGetAccountInfo = "getAccountInfo"
	methodGetAllAccounts = "getAllAccounts"
	methodRequestRole    = "requestRole"
	methodApproveRole    = "approveRole"
	methodRejectRole     = "rejectRole"

	defaultCacheSize = 256
	defaultCacheTTL  = 30 * time.Second
)

type Service struct {
	session *wallet.Session
	logger  *slog.Logger

	mu       sync.RWMutex
	contract ledger.Contract

	accounts *cache.LRU[common.Address, model.Account]
	group    singleflight.Group
	// generation is bumped on every invalidation so a fetch that started
	// before it does not repopulate the cache.
	generation atomic.Uint64

	unsubscribe func()
}

type Option func(*options)

type options struct {
	cacheSize int
	cacheTTL  time.Duration
	logger    *slog.Logger
}

func WithCache(size int, ttl time.Duration) Option {
	return func(o *options) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewService builds the view-model for session. It follows the session:
// disconnect and account changes drop cached records, a chain change also
// drops the contract binding.
func NewService(session *wallet.Session, opts ...Option) *Service {
	o := options{cacheSize: defaultCacheSize, cacheTTL: defaultCacheTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		session: session,
		logger:  o.logger.With("component", "accessmanager"),
		accounts: cache.NewLRU[common.Address, model.Account](o.cacheSize, o.cacheTTL,
			cache.WithLookupObserver(func(hit bool) {
				if hit {
					metrics.AccountCacheHits.Inc()
				} else {
					metrics.AccountCacheMisses.Inc()
				}
			}),
		),
	}
	s.unsubscribe = session.Subscribe(s.onSessionEvent)
	return s
}

// Close detaches the service from its session.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Bind attaches the contract; every cached record is discarded.
func (s *Service) Bind(c ledger.Contract) {
	s.mu.Lock()
	s.contract = c
	s.mu.Unlock()
	s.invalidateAll()
}

// Unbind detaches the contract. Reads of the current account fall back to
// the persisted snapshot until the next Bind.
func (s *Service) Unbind() {
	s.Bind(nil)
}

func (s *Service) binding() ledger.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contract
}

func (s *Service) onSessionEvent(ev wallet.Event) {
	switch ev.Kind {
	case wallet.EventChainChanged:
		s.Unbind()
	case wallet.EventDisconnected, wallet.EventAccountChanged, wallet.EventConnected:
		s.invalidateAll()
	}
}

// CurrentAccount returns the connected account's record, or nil when no
// account is connected. Without a binding it returns the snapshot persisted
// by the last live read, if it belongs to the same address.
func (s *Service) CurrentAccount(ctx context.Context) (*model.Account, error) {
	addr, ok := s.session.Address()
	if !ok {
		return nil, nil
	}
	c := s.binding()
	if c == nil {
		return s.snapshot(ctx, addr)
	}
	if acct, ok := s.accounts.Get(addr); ok {
		return &acct, nil
	}

	gen := s.generation.Load()
	// The flight outlives any one caller; each caller stops waiting on its
	// own ctx.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(addr.Hex(), func() (any, error) {
		acct, err := s.fetch(flightCtx, c, addr, addr)
		if err != nil {
			return nil, err
		}
		if s.current(addr, gen) {
			s.accounts.Put(addr, acct)
			s.persistSnapshot(flightCtx, addr, gen, acct)
		}
		return acct, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		acct := res.Val.(model.Account)
		return &acct, nil
	}
}

// current reports whether addr is still connected and nothing was
// invalidated since gen was read.
func (s *Service) current(addr common.Address, gen uint64) bool {
	if s.generation.Load() != gen {
		return false
	}
	connected, ok := s.session.Address()
	return ok && connected == addr
}

// Reload discards the cached record for the connected account and reads it
// again.
func (s *Service) Reload(ctx context.Context) (*model.Account, error) {
	if addr, ok := s.session.Address(); ok {
		s.invalidate(addr)
	}
	return s.CurrentAccount(ctx)
}

// AccountInfo reads any address's record without caching it.
func (s *Service) AccountInfo(ctx context.Context, addr common.Address) (*model.Account, error) {
	c := s.binding()
	if c == nil {
		return nil, ledger.ErrNotBound
	}
	caller, _ := s.session.Address()
	acct, err := s.fetch(ctx, c, caller, addr)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *Service) fetch(ctx context.Context, c ledger.Contract, from, addr common.Address) (model.Account, error) {
	values, err := c.Call(ctx, from, methodGetAccountInfo, addr)
	if err != nil {
		return model.Account{}, fmt.Errorf("get account info: %w", err)
	}
	acct, err := adapter.DecodeAccountTuple(values)
	if err != nil {
		return model.Account{}, fmt.Errorf("get account info: %w", err)
	}
	return acct, nil
}

// ListAccounts returns every registered account with a recognized role.
func (s *Service) ListAccounts(ctx context.Context) ([]model.Account, error) {
	c := s.binding()
	if c == nil {
		return nil, ledger.ErrNotBound
	}
	caller, _ := s.session.Address()
	values, err := c.Call(ctx, caller, methodGetAllAccounts)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("list accounts: %w", &adapter.DecodeError{Record: "account list", Err: adapter.ErrShape})
	}
	accounts, err := adapter.NormalizeAccounts(values[0], s.logDrop)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// RequestRole asks for roleName for the connected account and returns once
// the request is mined.
func (s *Service) RequestRole(ctx context.Context, roleName string) error {
	role, err := model.ParseRole(roleName)
	if err != nil {
		return err
	}
	return s.transact(ctx, methodRequestRole, nil, [32]byte(role.ID()))
}

func (s *Service) ApproveAccount(ctx context.Context, account common.Address) error {
	return s.transact(ctx, methodApproveRole, &account, account)
}

func (s *Service) RejectAccount(ctx context.Context, account common.Address) error {
	return s.transact(ctx, methodRejectRole, &account, account)
}

// transact submits method and, once confirmed, drops the cached records it
// affected. Nothing is retried.
func (s *Service) transact(ctx context.Context, method string, subject *common.Address, args ...any) error {
	caller, ok := s.session.Address()
	if !ok {
		return wallet.ErrNotConnected
	}
	c := s.binding()
	if c == nil {
		return ledger.ErrNotBound
	}

	receipt, err := c.Transact(ctx, caller, method, args...)
	if err != nil {
		s.logger.Warn("transaction failed", "method", method, "error", ledger.Describe(err))
		return err
	}
	s.logger.Info("transaction confirmed", "method", method, "tx_hash", receipt.TxHash.Hex(), "block", receipt.BlockNumber)

	s.invalidate(caller)
	if subject != nil {
		s.invalidate(*subject)
	}
	return nil
}

func (s *Service) invalidate(addr common.Address) {
	s.generation.Add(1)
	s.accounts.Invalidate(addr)
	s.group.Forget(addr.Hex())
}

func (s *Service) invalidateAll() {
	s.generation.Add(1)
	s.accounts.Purge()
}

func (s *Service) snapshot(ctx context.Context, addr common.Address) (*model.Account, error) {
	st := s.session.Store()
	if st == nil {
		return nil, nil
	}
	raw, err := st.Get(ctx, store.KeyCurrentAccount)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("failed to read account snapshot", "error", err)
		return nil, nil
	}
	acct, err := model.UnmarshalAccountSnapshot(raw)
	if err != nil {
		s.logger.Warn("discarding unreadable account snapshot", "error", err)
		return nil, nil
	}
	if acct.Address != addr {
		return nil, nil
	}
	metrics.AccountSnapshotFallbacks.Inc()
	return acct, nil
}

// persistSnapshot stores acct for first paint. Disconnect clears the session
// address before it deletes the keys, so a write that lost the race is
// detected by the recheck and undone.
func (s *Service) persistSnapshot(ctx context.Context, addr common.Address, gen uint64, acct model.Account) {
	st := s.session.Store()
	if st == nil {
		return
	}
	raw, err := model.MarshalAccountSnapshot(acct)
	if err == nil {
		err = st.Set(ctx, store.KeyCurrentAccount, raw)
	}
	if err != nil {
		s.logger.Warn("failed to persist account snapshot", "error", err)
		return
	}
	if !s.current(addr, gen) {
		if err := st.Delete(ctx, store.KeyCurrentAccount); err != nil {
			s.logger.Warn("failed to drop superseded account snapshot", "error", err)
		}
	}
}

func (s *Service) logDrop(err *adapter.DecodeError) {
	s.logger.Warn("dropping undecodable account", "reason", err.Reason(), "error", err)
}
