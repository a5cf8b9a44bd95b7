package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emperorhan/recycle-trace/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommander struct {
	data    map[string]string
	ttls    map[string]time.Duration
	deleted []string
	err     error
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCommander) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommander) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommander) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.deleted = append(f.deleted, keys...)
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, f.err)
}

func TestSessionStore_Namespacing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cmd := newFakeCommander()
	s := newSessionStore(cmd, "", 24*time.Hour)

	require.NoError(t, s.Set(ctx, store.KeyAccount, []byte("0xabc")))
	assert.Equal(t, "0xabc", cmd.data["tracectl:session:account"])
	assert.Equal(t, 24*time.Hour, cmd.ttls["tracectl:session:account"])

	got, err := s.Get(ctx, store.KeyAccount)
	require.NoError(t, err)
	assert.Equal(t, []byte("0xabc"), got)
}

func TestSessionStore_MissingKey(t *testing.T) {
	t.Parallel()
	s := newSessionStore(newFakeCommander(), "dev", 0)

	_, err := s.Get(context.Background(), store.KeyCurrentAccount)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionStore_DeleteBothKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cmd := newFakeCommander()
	s := newSessionStore(cmd, "dev", 0)

	require.NoError(t, s.Set(ctx, store.KeyAccount, []byte("a")))
	require.NoError(t, s.Set(ctx, store.KeyCurrentAccount, []byte("b")))
	require.NoError(t, s.Delete(ctx, store.KeyAccount, store.KeyCurrentAccount))

	assert.Equal(t, []string{"dev:session:account", "dev:session:currentAccount"}, cmd.deleted)
	assert.Empty(t, cmd.data)
	require.NoError(t, s.Delete(ctx))
}

func TestSessionStore_WrapsErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cmd := newFakeCommander()
	cmd.err = errors.New("connection refused")
	s := newSessionStore(cmd, "dev", 0)

	_, err := s.Get(ctx, store.KeyAccount)
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "redis get account")

	err = s.Set(ctx, store.KeyAccount, []byte("x"))
	assert.ErrorContains(t, err, "redis set account")
	assert.ErrorContains(t, s.Delete(ctx, store.KeyAccount), "redis del")
}

func TestNewSessionStore_BadURL(t *testing.T) {
	t.Parallel()

	_, err := NewSessionStore(context.Background(), "not a url", "", 0)
	assert.ErrorContains(t, err, "parse redis url")
}
