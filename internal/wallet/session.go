// Package wallet tracks which account the operator is acting as. It is the
// only place that talks to the endpoint about accounts; everything else reads
// the address from the Session and listens for its events.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/metrics"
	"github.com/emperorhan/recycle-trace/internal/store"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoAccounts   = errors.New("wallet exposed no accounts")
	ErrNotConnected = errors.New("wallet not connected")
)

type EventKind string

const (
	EventConnected      EventKind = "connected"
	EventAccountChanged EventKind = "account_changed"
	EventDisconnected   EventKind = "disconnected"
	EventChainChanged   EventKind = "chain_changed"
)

// Event is delivered to subscribers after the session state has changed.
type Event struct {
	Kind     EventKind
	Address  common.Address
	Previous common.Address
	ChainID  uint64
}

type Listener func(Event)

type Session struct {
	provider ledger.Provider
	store    store.SessionStore
	signer   ledger.Signer
	logger   *slog.Logger

	mu        sync.RWMutex
	address   common.Address
	chainID   uint64
	listeners map[int]Listener
	nextID    int
}

type Option func(*Session)

// WithSigner makes the session act as the signer's address without asking
// the endpoint for accounts.
func WithSigner(s ledger.Signer) Option {
	return func(sess *Session) { sess.signer = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(sess *Session) {
		if l != nil {
			sess.logger = l
		}
	}
}

func NewSession(provider ledger.Provider, st store.SessionStore, opts ...Option) *Session {
	s := &Session{
		provider:  provider,
		store:     st,
		logger:    slog.Default(),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "wallet")
	return s
}

// Address returns the connected account, if any.
func (s *Session) Address() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address, s.address != (common.Address{})
}

// ChainID is the chain observed at connect time or by the last chain change.
func (s *Session) ChainID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID
}

// Store exposes the session store to components that persist per-session
// display hints.
func (s *Session) Store() store.SessionStore {
	return s.store
}

// Subscribe registers fn for session events and returns a function that
// removes it.
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Connect asks the endpoint for an account and adopts the first one. A
// configured signer short-circuits the request.
func (s *Session) Connect(ctx context.Context) (common.Address, error) {
	if s.provider == nil {
		return common.Address{}, ledger.ErrProviderUnavailable
	}

	var addr common.Address
	if s.signer != nil {
		addr = s.signer.Address()
	} else {
		accounts, err := s.provider.RequestAccounts(ctx)
		if err != nil {
			return common.Address{}, fmt.Errorf("connect: %w", ledger.Translate("wallet", "eth_requestAccounts", err, nil))
		}
		if len(accounts) == 0 {
			return common.Address{}, ErrNoAccounts
		}
		addr = accounts[0]
	}

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("connect: %w", ledger.Translate("wallet", "eth_chainId", err, nil))
	}

	s.mu.Lock()
	prev := s.address
	s.address = addr
	s.chainID = chainID
	s.mu.Unlock()

	s.persist(ctx, addr)
	s.logger.Info("wallet connected", "address", addr.Hex(), "chain_id", chainID)
	s.emit(Event{Kind: EventConnected, Address: addr, Previous: prev, ChainID: chainID})
	return addr, nil
}

// Disconnect forgets the account locally. The endpoint is not told.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	prev := s.address
	s.address = common.Address{}
	chainID := s.chainID
	s.mu.Unlock()

	var err error
	if s.store != nil {
		if err = s.store.Delete(ctx, store.KeyAccount, store.KeyCurrentAccount); err != nil {
			err = fmt.Errorf("clear session: %w", err)
			s.logger.Warn("failed to clear persisted session", "error", err)
		}
	}
	s.logger.Info("wallet disconnected", "address", prev.Hex())
	s.emit(Event{Kind: EventDisconnected, Previous: prev, ChainID: chainID})
	return err
}

// HandleAccountsChanged applies an accounts-changed notification: an empty
// list disconnects, otherwise the first account is adopted.
func (s *Session) HandleAccountsChanged(ctx context.Context, accounts []common.Address) error {
	if len(accounts) == 0 {
		return s.Disconnect(ctx)
	}
	if s.signer != nil {
		return nil
	}

	next := accounts[0]
	s.mu.Lock()
	prev := s.address
	if prev == next {
		s.mu.Unlock()
		return nil
	}
	s.address = next
	chainID := s.chainID
	s.mu.Unlock()

	s.persist(ctx, next)
	s.logger.Info("wallet account changed", "previous", prev.Hex(), "address", next.Hex())
	s.emit(Event{Kind: EventAccountChanged, Address: next, Previous: prev, ChainID: chainID})
	return nil
}

// HandleChainChanged applies a chain-changed notification. Subscribers drop
// every binding and cache derived from the old chain.
func (s *Session) HandleChainChanged(chainID uint64) {
	s.mu.Lock()
	if s.chainID == chainID {
		s.mu.Unlock()
		return
	}
	prevChain := s.chainID
	s.chainID = chainID
	addr := s.address
	s.mu.Unlock()

	s.logger.Warn("wallet chain changed", "previous_chain_id", prevChain, "chain_id", chainID)
	s.emit(Event{Kind: EventChainChanged, Address: addr, ChainID: chainID})
}

// Restore re-adopts the persisted account when the endpoint still exposes
// it. A stale entry is cleared.
func (s *Session) Restore(ctx context.Context) (common.Address, bool, error) {
	if s.store == nil || s.provider == nil {
		return common.Address{}, false, nil
	}
	raw, err := s.store.Get(ctx, store.KeyAccount)
	if errors.Is(err, store.ErrNotFound) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, fmt.Errorf("restore session: %w", err)
	}
	if !common.IsHexAddress(string(raw)) {
		return common.Address{}, false, s.clearStale(ctx, string(raw))
	}
	saved := common.HexToAddress(string(raw))

	var available []common.Address
	if s.signer != nil {
		available = []common.Address{s.signer.Address()}
	} else if available, err = s.provider.Accounts(ctx); err != nil {
		return common.Address{}, false, fmt.Errorf("restore session: %w", ledger.Translate("wallet", "eth_accounts", err, nil))
	}
	if !slices.Contains(available, saved) {
		return common.Address{}, false, s.clearStale(ctx, saved.Hex())
	}

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("restore session: %w", ledger.Translate("wallet", "eth_chainId", err, nil))
	}
	s.mu.Lock()
	s.address = saved
	s.chainID = chainID
	s.mu.Unlock()

	s.logger.Info("wallet session restored", "address", saved.Hex(), "chain_id", chainID)
	s.emit(Event{Kind: EventConnected, Address: saved, ChainID: chainID})
	return saved, true, nil
}

func (s *Session) clearStale(ctx context.Context, saved string) error {
	s.logger.Info("discarding stale session", "address", saved)
	if err := s.store.Delete(ctx, store.KeyAccount, store.KeyCurrentAccount); err != nil {
		return fmt.Errorf("clear stale session: %w", err)
	}
	return nil
}

func (s *Session) persist(ctx context.Context, addr common.Address) {
	if s.store == nil {
		return
	}
	if err := s.store.Set(ctx, store.KeyAccount, []byte(addr.Hex())); err != nil {
		s.logger.Warn("failed to persist session", "error", err)
	}
}

func (s *Session) emit(ev Event) {
	metrics.SessionEventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	s.mu.RLock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
