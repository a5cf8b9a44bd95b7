package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/emperorhan/recycle-trace/internal/ledger/rpc"
	"github.com/emperorhan/recycle-trace/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

const (
	DefaultPollInterval = 2 * time.Second
	gasMarginPercent    = 20
	journalTimeout      = 5 * time.Second
)

// TxRequest describes one contract mutation.
type TxRequest struct {
	Contract     string
	Method       string
	From         common.Address
	To           common.Address
	Data         []byte
	DecodeRevert RevertDecoder
}

// Transactor submits a transaction and blocks until it is mined. Every
// submission is attempted exactly once; a caller that wants another attempt
// calls again.
type Transactor struct {
	provider     Provider
	signer       Signer
	journal      Journal
	pollInterval time.Duration
	logger       *slog.Logger
	nowFn        func() time.Time

	chainMu sync.Mutex
	chainID *big.Int
}

type TransactorOption func(*Transactor)

// WithSigner signs locally and broadcasts raw transactions.
func WithSigner(s Signer) TransactorOption {
	return func(t *Transactor) { t.signer = s }
}

func WithJournal(j Journal) TransactorOption {
	return func(t *Transactor) {
		if j != nil {
			t.journal = j
		}
	}
}

func WithPollInterval(d time.Duration) TransactorOption {
	return func(t *Transactor) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

func WithTransactorLogger(l *slog.Logger) TransactorOption {
	return func(t *Transactor) {
		if l != nil {
			t.logger = l
		}
	}
}

func NewTransactor(provider Provider, opts ...TransactorOption) *Transactor {
	t := &Transactor{
		provider:     provider,
		journal:      NopJournal{},
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
		nowFn:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "transactor")
	return t
}

// Signer returns the local signer, or nil when the endpoint signs.
func (t *Transactor) Signer() Signer {
	return t.signer
}

// Submit runs preflight gas estimation, broadcasts, and waits for the
// receipt. A revert caught during preflight never reaches the network.
func (t *Transactor) Submit(ctx context.Context, req TxRequest) (*Receipt, error) {
	from, err := t.sender(req.From)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", req.Contract, req.Method, err)
	}

	entry := JournalEntry{
		ID:        uuid.New(),
		Contract:  req.Contract,
		Method:    req.Method,
		From:      from,
		To:        req.To,
		CreatedAt: t.nowFn().UTC(),
	}

	receipt, err := t.submit(ctx, req, from, &entry)

	entry.Status = statusFor(err)
	if err != nil {
		entry.Error = Describe(err)
		if entry.TxHash != (common.Hash{}) && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			entry.Status = TxUnconfirmed
		}
	}
	metrics.TxOutcomeTotal.WithLabelValues(req.Contract, req.Method, string(entry.Status)).Inc()
	t.record(ctx, entry)

	if err != nil {
		t.logger.Warn("transaction not confirmed",
			"contract", req.Contract,
			"method", req.Method,
			"tx_hash", entry.TxHash.Hex(),
			"status", entry.Status,
			"error", err,
		)
		return nil, err
	}
	return receipt, nil
}

func (t *Transactor) submit(ctx context.Context, req TxRequest, from common.Address, entry *JournalEntry) (*Receipt, error) {
	to := req.To
	args := rpc.CallArgs{From: &from, To: &to, Data: req.Data}

	gas, err := t.provider.EstimateGas(ctx, args)
	if err != nil {
		return nil, Translate(req.Contract, req.Method, err, req.DecodeRevert)
	}
	gas += gas * gasMarginPercent / 100

	hash, err := t.send(ctx, args, gas)
	if err != nil {
		return nil, Translate(req.Contract, req.Method, err, req.DecodeRevert)
	}
	entry.TxHash = hash
	metrics.TxSubmittedTotal.WithLabelValues(req.Contract, req.Method).Inc()
	t.logger.Info("transaction submitted", "contract", req.Contract, "method", req.Method, "tx_hash", hash.Hex())

	started := t.nowFn()
	raw, err := t.awaitReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: await receipt %s: %w", req.Contract, req.Method, hash.Hex(), err)
	}
	metrics.TxConfirmLatency.WithLabelValues(req.Contract, req.Method).Observe(t.nowFn().Sub(started).Seconds())

	block, err := rpc.ParseHexUint64(raw.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: receipt block number: %w", req.Contract, req.Method, err)
	}
	entry.BlockNumber = block

	if !raw.Succeeded() {
		return nil, &RevertError{
			Contract: req.Contract,
			Method:   req.Method,
			TxHash:   hash,
			Reason:   t.replayReason(ctx, args, raw.BlockNumber, req.DecodeRevert),
		}
	}

	receipt := &Receipt{TxHash: hash, BlockNumber: block, Logs: raw.Logs}
	if raw.GasUsed != "" {
		if used, err := rpc.ParseHexUint64(raw.GasUsed); err == nil {
			receipt.GasUsed = used
		}
	}
	t.logger.Info("transaction confirmed", "contract", req.Contract, "method", req.Method, "tx_hash", hash.Hex(), "block", block)
	return receipt, nil
}

func (t *Transactor) sender(from common.Address) (common.Address, error) {
	if t.signer == nil {
		if from == (common.Address{}) {
			return from, fmt.Errorf("no sender address: %w", ErrNotBound)
		}
		return from, nil
	}
	local := t.signer.Address()
	if from != (common.Address{}) && from != local {
		return from, fmt.Errorf("sender %s is not the local signer %s", from.Hex(), local.Hex())
	}
	return local, nil
}

func (t *Transactor) send(ctx context.Context, args rpc.CallArgs, gas uint64) (common.Hash, error) {
	if t.signer == nil {
		g := hexutil.Uint64(gas)
		args.Gas = &g
		return t.provider.SendTransaction(ctx, args)
	}

	chainID, err := t.chain(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := t.provider.PendingNonce(ctx, *args.From)
	if err != nil {
		return common.Hash{}, err
	}
	price, err := t.provider.GasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		To:       args.To,
		Value:    new(big.Int),
		Data:     args.Data,
	})
	signed, err := t.signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode transaction: %w", err)
	}
	return t.provider.SendRawTransaction(ctx, raw)
}

func (t *Transactor) chain(ctx context.Context) (*big.Int, error) {
	t.chainMu.Lock()
	defer t.chainMu.Unlock()
	if t.chainID != nil {
		return t.chainID, nil
	}
	id, err := t.provider.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	t.chainID = new(big.Int).SetUint64(id)
	return t.chainID, nil
}

// awaitReceipt polls until the receipt appears or ctx ends. Polling errors
// from an unhealthy endpoint are tolerated; the transaction is already out.
func (t *Transactor) awaitReceipt(ctx context.Context, hash common.Hash) (*rpc.TransactionReceipt, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.provider.GetTransactionReceipt(ctx, hash)
		switch {
		case err != nil && !IsUpstreamFailure(err):
			return nil, err
		case err != nil:
			t.logger.Warn("receipt poll failed", "tx_hash", hash.Hex(), "error", err)
		case receipt != nil:
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// replayReason re-executes a failed transaction at its block to recover the
// revert reason.
func (t *Transactor) replayReason(ctx context.Context, args rpc.CallArgs, block string, decode RevertDecoder) string {
	_, err := t.provider.Call(ctx, args, block)
	if err == nil {
		return FailedStatusReason
	}
	if reason := revertReason(err, decode); reason != "" {
		return reason
	}
	return FailedStatusReason
}

func (t *Transactor) record(ctx context.Context, entry JournalEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := t.journal.Record(ctx, entry); err != nil {
		t.logger.Warn("journal record failed", "contract", entry.Contract, "method", entry.Method, "error", err)
	}
}
