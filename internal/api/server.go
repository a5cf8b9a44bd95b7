// Package api serves the dashboard over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/emperorhan/recycle-trace/internal/dashboard"
	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/traceability"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxRequestBodyBytes = 1 << 20 // 1 MB
	defaultJournalLimit = 50
)

// SessionController is the wallet session as the API drives it.
type SessionController interface {
	Address() (common.Address, bool)
	ChainID() uint64
	Connect(ctx context.Context) (common.Address, error)
	Disconnect(ctx context.Context) error
}

type AccountService interface {
	dashboard.AccountSource
	AccountInfo(ctx context.Context, addr common.Address) (*model.Account, error)
	RequestRole(ctx context.Context, roleName string) error
	ApproveAccount(ctx context.Context, account common.Address) error
	RejectAccount(ctx context.Context, account common.Address) error
}

type TokenService interface {
	dashboard.TokenSource
	TokenHistory(ctx context.Context, tokenID uint64) ([]model.TokenHistoryEntry, error)
	CreateToken(ctx context.Context, req traceability.CreateTokenRequest) (*ledger.Receipt, error)
	CollectToken(ctx context.Context, tokenID uint64) (*ledger.Receipt, error)
	Transfer(ctx context.Context, tokenID uint64, to common.Address, amount uint64) (*ledger.Receipt, error)
	AcceptTransfer(ctx context.Context, transferID uint64) (*ledger.Receipt, error)
	RejectTransfer(ctx context.Context, transferID uint64) (*ledger.Receipt, error)
	ProcessToken(ctx context.Context, tokenID uint64, featuresJSON string) (*ledger.Receipt, error)
	RewardToken(ctx context.Context, tokenID, amount uint64, featuresJSON string) (*ledger.Receipt, error)
}

type DashboardBuilder interface {
	Build(ctx context.Context) (*dashboard.View, error)
}

type Server struct {
	session   SessionController
	accounts  AccountService
	tokens    TokenService
	dashboard DashboardBuilder
	journal   ledger.Journal
	logger    *slog.Logger
}

type ServerOption func(*Server)

// WithJournal exposes recent journal entries at /api/v1/journal.
func WithJournal(j ledger.Journal) ServerOption {
	return func(s *Server) { s.journal = j }
}

func NewServer(
	session SessionController,
	accounts AccountService,
	tokens TokenService,
	board DashboardBuilder,
	logger *slog.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{
		session:   session,
		accounts:  accounts,
		tokens:    tokens,
		dashboard: board,
		journal:   ledger.NopJournal{},
		logger:    logger.With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API routes plus /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, instrument(pattern, h))
	}

	handle("GET /api/v1/session", s.handleGetSession)
	handle("POST /api/v1/session/connect", s.handleConnect)
	handle("POST /api/v1/session/disconnect", s.handleDisconnect)
	handle("GET /api/v1/dashboard", s.handleDashboard)

	handle("GET /api/v1/accounts", s.handleListAccounts)
	handle("GET /api/v1/accounts/me", s.handleCurrentAccount)
	handle("GET /api/v1/accounts/{address}", s.handleAccountInfo)
	handle("POST /api/v1/accounts/role-requests", s.handleRequestRole)
	handle("POST /api/v1/accounts/{address}/approve", s.handleApproveAccount)
	handle("POST /api/v1/accounts/{address}/reject", s.handleRejectAccount)

	handle("GET /api/v1/tokens", s.handleListTokens)
	handle("POST /api/v1/tokens", s.handleCreateToken)
	handle("GET /api/v1/tokens/collected", s.handleCollectedTokens)
	handle("GET /api/v1/tokens/processed", s.handleProcessedTokens)
	handle("GET /api/v1/tokens/rewarded", s.handleRewardedTokens)
	handle("GET /api/v1/tokens/{id}/history", s.handleTokenHistory)
	handle("POST /api/v1/tokens/{id}/collect", s.handleCollectToken)
	handle("POST /api/v1/tokens/{id}/transfer", s.handleTransferToken)
	handle("POST /api/v1/tokens/{id}/process", s.handleProcessToken)
	handle("POST /api/v1/tokens/{id}/reward", s.handleRewardToken)

	handle("GET /api/v1/transfers", s.handleListTransfers)
	handle("POST /api/v1/transfers/{id}/accept", s.handleAcceptTransfer)
	handle("POST /api/v1/transfers/{id}/reject", s.handleRejectTransfer)

	handle("GET /api/v1/journal", s.handleJournal)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSONBody reads and decodes a JSON request body into v.
// Returns false (and writes an error response) if decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return false
	}
	return true
}

func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := r.PathValue("address")
	if !common.IsHexAddress(raw) {
		http.Error(w, `{"error":"address must be a 0x-prefixed hex address"}`, http.StatusBadRequest)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"id must be a non-negative integer"}`, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// --- Session ---

type sessionResponse struct {
	Connected bool            `json:"connected"`
	Address   *common.Address `json:"address,omitempty"`
	ChainID   uint64          `json:"chain_id,omitempty"`
	Network   string          `json:"network,omitempty"`
}

func (s *Server) sessionState() sessionResponse {
	addr, ok := s.session.Address()
	if !ok {
		return sessionResponse{}
	}
	chainID := s.session.ChainID()
	return sessionResponse{
		Connected: true,
		Address:   &addr,
		ChainID:   chainID,
		Network:   model.NetworkForChainID(chainID).String(),
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionState())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if _, err := s.session.Connect(r.Context()); err != nil {
		s.writeError(w, "connect", err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionState())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Disconnect(r.Context()); err != nil {
		s.writeError(w, "disconnect", err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionState())
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := s.dashboard.Build(r.Context())
	if err != nil {
		s.writeError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// --- Accounts ---

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, "list accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleCurrentAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.accounts.CurrentAccount(r.Context())
	if err != nil {
		s.writeError(w, "current account", err)
		return
	}
	if acct == nil {
		http.Error(w, `{"error":"wallet not connected"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleAccountInfo(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	acct, err := s.accounts.AccountInfo(r.Context(), addr)
	if err != nil {
		s.writeError(w, "account info", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleRequestRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Role == "" {
		http.Error(w, `{"error":"role is required"}`, http.StatusBadRequest)
		return
	}
	if err := s.accounts.RequestRole(r.Context(), req.Role); err != nil {
		s.writeError(w, "request role", err)
		return
	}
	s.logger.Info("role requested via API", "role", req.Role)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleApproveAccount(w http.ResponseWriter, r *http.Request) {
	s.decideAccount(w, r, "approve account", s.accounts.ApproveAccount)
}

func (s *Server) handleRejectAccount(w http.ResponseWriter, r *http.Request) {
	s.decideAccount(w, r, "reject account", s.accounts.RejectAccount)
}

func (s *Server) decideAccount(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, common.Address) error) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), addr); err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Tokens ---

type receiptResponse struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
}

func (s *Server) writeReceipt(w http.ResponseWriter, op string, rcpt *ledger.Receipt, err error) {
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse{TxHash: rcpt.TxHash, BlockNumber: rcpt.BlockNumber, GasUsed: rcpt.GasUsed})
}

// handleListTokens lists all tokens, or one holder's tokens with
// ?owner=<address|me>.
func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	var (
		tokens []model.Token
		err    error
	)
	switch {
	case owner == "":
		tokens, err = s.tokens.AllTokens(r.Context())
	case owner == "me":
		addr, ok := s.session.Address()
		if !ok {
			http.Error(w, `{"error":"wallet not connected"}`, http.StatusUnauthorized)
			return
		}
		tokens, err = s.tokens.TokensByUser(r.Context(), addr)
	case common.IsHexAddress(owner):
		tokens, err = s.tokens.TokensByUser(r.Context(), common.HexToAddress(owner))
	default:
		http.Error(w, `{"error":"owner must be a hex address or \"me\""}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, "list tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleCollectedTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.tokens.CollectedTokens(r.Context())
	if err != nil {
		s.writeError(w, "collected tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleProcessedTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.tokens.ProcessedTokens(r.Context())
	if err != nil {
		s.writeError(w, "processed tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleRewardedTokens(w http.ResponseWriter, r *http.Request) {
	var (
		rewards []traceability.RewardedToken
		err     error
	)
	if citizen := r.URL.Query().Get("citizen"); citizen != "" {
		if !common.IsHexAddress(citizen) {
			http.Error(w, `{"error":"citizen must be a hex address"}`, http.StatusBadRequest)
			return
		}
		rewards, err = s.tokens.RewardedTokensByUser(r.Context(), common.HexToAddress(citizen))
	} else {
		rewards, err = s.tokens.RewardedTokens(r.Context())
	}
	if err != nil {
		s.writeError(w, "rewarded tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (s *Server) handleTokenHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	history, err := s.tokens.TokenHistory(r.Context(), id)
	if err != nil {
		s.writeError(w, "token history", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req traceability.CreateTokenRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	rcpt, err := s.tokens.CreateToken(r.Context(), req)
	s.writeReceipt(w, "create token", rcpt, err)
}

func (s *Server) handleCollectToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rcpt, err := s.tokens.CollectToken(r.Context(), id)
	s.writeReceipt(w, "collect token", rcpt, err)
}

type transferRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

func (s *Server) handleTransferToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.To) {
		http.Error(w, `{"error":"to must be a hex address"}`, http.StatusBadRequest)
		return
	}
	rcpt, err := s.tokens.Transfer(r.Context(), id, common.HexToAddress(req.To), req.Amount)
	s.writeReceipt(w, "transfer token", rcpt, err)
}

type featuresRequest struct {
	Amount   uint64 `json:"amount"`
	Features string `json:"features"`
}

func (s *Server) handleProcessToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req featuresRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	rcpt, err := s.tokens.ProcessToken(r.Context(), id, req.Features)
	s.writeReceipt(w, "process token", rcpt, err)
}

func (s *Server) handleRewardToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req featuresRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	rcpt, err := s.tokens.RewardToken(r.Context(), id, req.Amount, req.Features)
	s.writeReceipt(w, "reward token", rcpt, err)
}

// --- Transfers ---

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	status, err := model.ParseTransferStatus(r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, `{"error":"status must be one of None, Pending, Accepted, Rejected"}`, http.StatusBadRequest)
		return
	}
	transfers, err := s.tokens.Transfers(r.Context(), status)
	if err != nil {
		s.writeError(w, "list transfers", err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

func (s *Server) handleAcceptTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rcpt, err := s.tokens.AcceptTransfer(r.Context(), id)
	s.writeReceipt(w, "accept transfer", rcpt, err)
}

func (s *Server) handleRejectTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rcpt, err := s.tokens.RejectTransfer(r.Context(), id)
	s.writeReceipt(w, "reject transfer", rcpt, err)
}

// --- Journal ---

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"limit must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	entries, err := s.journal.Recent(ctx, limit)
	if err != nil {
		s.logger.Error("read journal failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []ledger.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
