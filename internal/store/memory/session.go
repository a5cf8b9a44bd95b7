// Package memory is the in-process SessionStore used when no Redis URL is
// configured, and by tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/emperorhan/recycle-trace/internal/store"
)

type SessionStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ store.SessionStore = (*SessionStore)(nil)

func NewSessionStore() *SessionStore {
	return &SessionStore{data: make(map[string][]byte)}
}

func (s *SessionStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(v), nil
}

func (s *SessionStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = slices.Clone(value)
	return nil
}

func (s *SessionStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}
