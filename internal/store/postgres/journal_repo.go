package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
)

const maxRecent = 500

// JournalRepo stores ledger.JournalEntry rows in tx_journal.
type JournalRepo struct {
	db *DB
}

var _ ledger.Journal = (*JournalRepo)(nil)

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

func (r *JournalRepo) Record(ctx context.Context, e ledger.JournalEntry) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var txHash sql.NullString
	if e.TxHash != (common.Hash{}) {
		txHash = sql.NullString{String: e.TxHash.Hex(), Valid: true}
	}
	var block sql.NullInt64
	if e.BlockNumber > 0 {
		block = sql.NullInt64{Int64: int64(e.BlockNumber), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tx_journal (
			id, contract, method, from_address, to_address,
			tx_hash, status, error, block_number, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Contract, e.Method, e.From.Hex(), e.To.Hex(),
		txHash, string(e.Status), e.Error, block, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]ledger.JournalEntry, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, contract, method, from_address, to_address,
		       tx_hash, status, error, block_number, created_at
		FROM tx_journal
		ORDER BY created_at DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []ledger.JournalEntry
	for rows.Next() {
		var (
			e        ledger.JournalEntry
			from, to string
			txHash   sql.NullString
			status   string
			block    sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Contract, &e.Method, &from, &to,
			&txHash, &status, &e.Error, &block, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.From = common.HexToAddress(from)
		e.To = common.HexToAddress(to)
		if txHash.Valid {
			e.TxHash = common.HexToHash(txHash.String)
		}
		e.Status = ledger.TxStatus(status)
		if block.Valid {
			e.BlockNumber = uint64(block.Int64)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return out, nil
}
