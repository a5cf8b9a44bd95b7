// Package traceability exposes the token ledger as typed operations for the
// connected session. Reads always go to the ledger; writes return once mined
// and never touch local state.
package traceability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/emperorhan/recycle-trace/internal/adapter"
	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

const (
	methodGetTokensByUser   = "getTokensByUser"
	methodGetAllTokens      = "getAllTokens"
	methodGetTransfers      = "getTransfers"
	methodCreateToken       = "createToken"
	methodCollectToken      = "collectToken"
	methodTransfer          = "transfer"
	methodSetTransferStatus = "setTransferStatus"
	methodProcessToken      = "processToken"
	methodRewardToken       = "rewardToken"

	EventCustodyChanged = "CustodyChanged"
	EventTokenCollected = "TokenCollected"
	EventTokenProcessed = "TokenProcessed"
	EventTokenRewarded  = "TokenRewarded"

	emptyFeatures = "{}"
)

// ErrInvalidInput rejects arguments before anything is submitted.
var ErrInvalidInput = errors.New("invalid input")

// RewardedToken pairs a reward emission with the token's current record.
// Token is nil when the token list no longer carries the id.
type RewardedToken struct {
	model.RewardedToken
	Token *model.Token `json:"token,omitempty"`
}

type Service struct {
	session *wallet.Session
	logger  *slog.Logger

	mu       sync.RWMutex
	contract ledger.Contract

	unsubscribe func()
}

func NewService(session *wallet.Session, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		session: session,
		logger:  logger.With("component", "traceability"),
	}
	s.unsubscribe = session.Subscribe(func(ev wallet.Event) {
		if ev.Kind == wallet.EventChainChanged {
			s.Unbind()
		}
	})
	return s
}

func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Service) Bind(c ledger.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contract = c
}

func (s *Service) Unbind() {
	s.Bind(nil)
}

// Ready reports whether both a binding and a connected account exist.
func (s *Service) Ready() bool {
	_, connected := s.session.Address()
	return connected && s.binding() != nil
}

func (s *Service) binding() ledger.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contract
}

func (s *Service) read(ctx context.Context, method string, args ...any) (any, error) {
	c := s.binding()
	if c == nil {
		return nil, ledger.ErrNotBound
	}
	caller, _ := s.session.Address()
	values, err := c.Call(ctx, caller, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, &adapter.DecodeError{Record: method, Err: fmt.Errorf("%w: %d return values", adapter.ErrShape, len(values))}
	}
	return values[0], nil
}

func (s *Service) events(ctx context.Context, event string, indexed ...any) ([]ledger.Event, error) {
	c := s.binding()
	if c == nil {
		return nil, ledger.ErrNotBound
	}
	return c.FilterEvents(ctx, event, indexed...)
}

// TokensByUser lists the tokens user currently holds.
func (s *Service) TokensByUser(ctx context.Context, user common.Address) ([]model.Token, error) {
	raw, err := s.read(ctx, methodGetTokensByUser, user)
	if err != nil {
		return nil, fmt.Errorf("tokens by user: %w", err)
	}
	tokens, err := adapter.NormalizeTokens(raw, s.logDrop)
	if err != nil {
		return nil, fmt.Errorf("tokens by user: %w", err)
	}
	return tokens, nil
}

// MyTokens lists the connected account's tokens.
func (s *Service) MyTokens(ctx context.Context) ([]model.Token, error) {
	addr, ok := s.session.Address()
	if !ok {
		return nil, wallet.ErrNotConnected
	}
	return s.TokensByUser(ctx, addr)
}

func (s *Service) AllTokens(ctx context.Context) ([]model.Token, error) {
	raw, err := s.read(ctx, methodGetAllTokens)
	if err != nil {
		return nil, fmt.Errorf("all tokens: %w", err)
	}
	tokens, err := adapter.NormalizeTokens(raw, s.logDrop)
	if err != nil {
		return nil, fmt.Errorf("all tokens: %w", err)
	}
	return tokens, nil
}

// Transfers lists transfers. A status other than None keeps only transfers
// in that status, whatever the ledger returned.
func (s *Service) Transfers(ctx context.Context, status model.TransferStatus) ([]model.Transfer, error) {
	raw, err := s.read(ctx, methodGetTransfers, uint8(status))
	if err != nil {
		return nil, fmt.Errorf("transfers: %w", err)
	}
	transfers, err := adapter.NormalizeTransfers(raw, s.logDrop)
	if err != nil {
		return nil, fmt.Errorf("transfers: %w", err)
	}
	if status == model.TransferStatusNone {
		return transfers, nil
	}
	filtered := transfers[:0]
	for _, t := range transfers {
		if t.Status == status {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// TokenHistory replays the CustodyChanged log for one token in emission
// order.
func (s *Service) TokenHistory(ctx context.Context, tokenID uint64) ([]model.TokenHistoryEntry, error) {
	events, err := s.events(ctx, EventCustodyChanged, bigID(tokenID))
	if err != nil {
		return nil, fmt.Errorf("token history: %w", err)
	}
	entries, err := adapter.NormalizeHistory(events, s.logDrop)
	if err != nil {
		return nil, fmt.Errorf("token history: %w", err)
	}
	return entries, nil
}

// CollectedTokens returns current records of every token that has a
// TokenCollected emission, in token-list order.
func (s *Service) CollectedTokens(ctx context.Context) ([]model.Token, error) {
	events, tokens, err := s.eventsWithTokens(ctx, EventTokenCollected)
	if err != nil {
		return nil, fmt.Errorf("collected tokens: %w", err)
	}
	collected, err := adapter.NormalizeCollectedEvents(events, s.logDrop)
	if err != nil {
		return nil, fmt.Errorf("collected tokens: %w", err)
	}
	ids := make(map[uint64]struct{}, len(collected))
	for _, c := range collected {
		ids[c.TokenID] = struct{}{}
	}
	return selectTokens(tokens, ids), nil
}

// ProcessedTokens is CollectedTokens for TokenProcessed emissions.
func (s *Service) ProcessedTokens(ctx context.Context) ([]model.Token, error) {
	events, tokens, err := s.eventsWithTokens(ctx, EventTokenProcessed)
	if err != nil {
		return nil, fmt.Errorf("processed tokens: %w", err)
	}
	processed, err := adapter.NormalizeProcessedEvents(events, s.logDrop)
	if err != nil {
		return nil, fmt.Errorf("processed tokens: %w", err)
	}
	ids := make(map[uint64]struct{}, len(processed))
	for _, p := range processed {
		ids[p.TokenID] = struct{}{}
	}
	return selectTokens(tokens, ids), nil
}

// RewardedTokens returns every reward emission in order, each with the
// token's current record attached.
func (s *Service) RewardedTokens(ctx context.Context) ([]RewardedToken, error) {
	events, tokens, err := s.eventsWithTokens(ctx, EventTokenRewarded)
	if err != nil {
		return nil, fmt.Errorf("rewarded tokens: %w", err)
	}
	rewards, err := adapter.NormalizeRewardedEvents(events, s.logDrop)
	if err != nil {
		return nil, fmt.Errorf("rewarded tokens: %w", err)
	}

	byID := make(map[uint64]*model.Token, len(tokens))
	for i := range tokens {
		byID[tokens[i].ID] = &tokens[i]
	}
	out := make([]RewardedToken, len(rewards))
	for i, r := range rewards {
		out[i] = RewardedToken{RewardedToken: r, Token: byID[r.TokenID]}
	}
	return out, nil
}

// RewardedTokensByUser keeps the rewards paid to citizen.
func (s *Service) RewardedTokensByUser(ctx context.Context, citizen common.Address) ([]RewardedToken, error) {
	all, err := s.RewardedTokens(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RewardedToken, 0, len(all))
	for _, r := range all {
		if r.Citizen == citizen {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) eventsWithTokens(ctx context.Context, event string) ([]ledger.Event, []model.Token, error) {
	var (
		events []ledger.Event
		tokens []model.Token
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.events(gctx, event)
		return err
	})
	g.Go(func() error {
		var err error
		tokens, err = s.AllTokens(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return events, tokens, nil
}

func selectTokens(tokens []model.Token, ids map[uint64]struct{}) []model.Token {
	out := make([]model.Token, 0, len(ids))
	for _, t := range tokens {
		if _, ok := ids[t.ID]; ok {
			out = append(out, t)
		}
	}
	return out
}

// CreateTokenRequest carries the arguments of createToken. An empty
// CitizenFeatures is submitted as "{}".
type CreateTokenRequest struct {
	Name            string `json:"name"`
	TotalSupply     uint64 `json:"total_supply"`
	CitizenFeatures string `json:"citizen_features"`
	ParentID        uint64 `json:"parent_id"`
}

func (s *Service) CreateToken(ctx context.Context, req CreateTokenRequest) (*ledger.Receipt, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: token name is required", ErrInvalidInput)
	}
	features, err := normalizeFeatures("citizen features", req.CitizenFeatures)
	if err != nil {
		return nil, err
	}
	return s.transact(ctx, methodCreateToken, name, new(big.Int).SetUint64(req.TotalSupply), features, bigID(req.ParentID))
}

func (s *Service) CollectToken(ctx context.Context, tokenID uint64) (*ledger.Receipt, error) {
	return s.transact(ctx, methodCollectToken, bigID(tokenID))
}

// Transfer proposes moving amount of tokenID to to. Argument order on the
// contract is (to, tokenId, amount).
func (s *Service) Transfer(ctx context.Context, tokenID uint64, to common.Address, amount uint64) (*ledger.Receipt, error) {
	if to == (common.Address{}) {
		return nil, fmt.Errorf("%w: recipient address is required", ErrInvalidInput)
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	return s.transact(ctx, methodTransfer, to, bigID(tokenID), new(big.Int).SetUint64(amount))
}

func (s *Service) AcceptTransfer(ctx context.Context, transferID uint64) (*ledger.Receipt, error) {
	return s.transact(ctx, methodSetTransferStatus, bigID(transferID), true)
}

func (s *Service) RejectTransfer(ctx context.Context, transferID uint64) (*ledger.Receipt, error) {
	return s.transact(ctx, methodSetTransferStatus, bigID(transferID), false)
}

func (s *Service) ProcessToken(ctx context.Context, tokenID uint64, featuresJSON string) (*ledger.Receipt, error) {
	features, err := normalizeFeatures("processor features", featuresJSON)
	if err != nil {
		return nil, err
	}
	return s.transact(ctx, methodProcessToken, bigID(tokenID), features)
}

func (s *Service) RewardToken(ctx context.Context, tokenID, amount uint64, featuresJSON string) (*ledger.Receipt, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: reward amount must be positive", ErrInvalidInput)
	}
	features, err := normalizeFeatures("reward features", featuresJSON)
	if err != nil {
		return nil, err
	}
	return s.transact(ctx, methodRewardToken, bigID(tokenID), new(big.Int).SetUint64(amount), features)
}

func (s *Service) transact(ctx context.Context, method string, args ...any) (*ledger.Receipt, error) {
	caller, ok := s.session.Address()
	if !ok {
		return nil, wallet.ErrNotConnected
	}
	c := s.binding()
	if c == nil {
		return nil, ledger.ErrNotBound
	}
	receipt, err := c.Transact(ctx, caller, method, args...)
	if err != nil {
		s.logger.Warn("transaction failed", "method", method, "error", ledger.Describe(err))
		return nil, err
	}
	s.logger.Info("transaction confirmed", "method", method, "tx_hash", receipt.TxHash.Hex(), "block", receipt.BlockNumber)
	return receipt, nil
}

// normalizeFeatures defaults an empty payload to "{}" and rejects anything
// that is not a JSON document.
func normalizeFeatures(field, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return emptyFeatures, nil
	}
	if !json.Valid([]byte(trimmed)) {
		return "", fmt.Errorf("%w: %s must be valid JSON", ErrInvalidInput, field)
	}
	return trimmed, nil
}

func bigID(id uint64) *big.Int {
	return new(big.Int).SetUint64(id)
}

func (s *Service) logDrop(err *adapter.DecodeError) {
	s.logger.Warn("dropping undecodable record", "reason", err.Reason(), "error", err)
}
