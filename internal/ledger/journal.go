package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type TxStatus string

const (
	TxConfirmed   TxStatus = "confirmed"
	TxReverted    TxStatus = "reverted"
	TxDeclined    TxStatus = "declined"
	TxFailed      TxStatus = "failed"
	TxUnconfirmed TxStatus = "unconfirmed"
)

// JournalEntry records one attempted mutation for operator audit. It is never
// read back as ledger state.
type JournalEntry struct {
	ID          uuid.UUID      `json:"id"`
	Contract    string         `json:"contract"`
	Method      string         `json:"method"`
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	TxHash      common.Hash    `json:"txHash"`
	Status      TxStatus       `json:"status"`
	Error       string         `json:"error,omitempty"`
	BlockNumber uint64         `json:"blockNumber,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
	Recent(ctx context.Context, limit int) ([]JournalEntry, error)
}

// NopJournal discards entries.
type NopJournal struct{}

func (NopJournal) Record(context.Context, JournalEntry) error { return nil }

func (NopJournal) Recent(context.Context, int) ([]JournalEntry, error) { return nil, nil }

func statusFor(err error) TxStatus {
	if err == nil {
		return TxConfirmed
	}
	switch Classify(err).Kind {
	case KindReverted:
		return TxReverted
	case KindUserDeclined:
		return TxDeclined
	}
	return TxFailed
}
