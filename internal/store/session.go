package store

import (
	"context"
	"errors"
)

// Keys persisted for the wallet session. Both are cleared on disconnect.
const (
	KeyAccount        = "account"
	KeyCurrentAccount = "currentAccount"
)

// ErrNotFound is returned by SessionStore.Get when a key is absent.
var ErrNotFound = errors.New("session key not found")

// SessionStore persists the small amount of state a session survives restarts
// with: the connected address and the last known account snapshot. It is a
// display hint only and never replaces a ledger read.
type SessionStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}
