package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emperorhan/recycle-trace/internal/store"
	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "tracectl"

// commander is the subset of *redis.Client the session store uses.
type commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// SessionStore keeps session keys in Redis under "<namespace>:session:<key>".
type SessionStore struct {
	cmd       commander
	closer    func() error
	namespace string
	ttl       time.Duration
}

var _ store.SessionStore = (*SessionStore)(nil)

// NewSessionStore connects to url and verifies the server answers PING. A
// zero ttl keeps keys until they are deleted.
func NewSessionStore(ctx context.Context, url, namespace string, ttl time.Duration) (*SessionStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := newSessionStore(client, namespace, ttl)
	s.closer = client.Close
	return s, nil
}

func newSessionStore(cmd commander, namespace string, ttl time.Duration) *SessionStore {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &SessionStore{cmd: cmd, namespace: namespace, ttl: ttl}
}

func (s *SessionStore) key(k string) string {
	return s.namespace + ":session:" + k
}

func (s *SessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.cmd.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (s *SessionStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.cmd.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.cmd.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *SessionStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
