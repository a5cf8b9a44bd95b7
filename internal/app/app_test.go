package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emperorhan/recycle-trace/internal/alert"
	"github.com/emperorhan/recycle-trace/internal/config"
	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/ledger/rpc"
	"github.com/emperorhan/recycle-trace/internal/store"
	"github.com/emperorhan/recycle-trace/internal/store/memory"
	"github.com/emperorhan/recycle-trace/internal/store/postgres"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var operator = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

// fakeNode answers the account and chain queries a session needs.
type fakeNode struct {
	chainID atomic.Uint64
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	t.Helper()
	n := &fakeNode{}
	n.chainID.Store(31337)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpc.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := rpc.Response{JSONRPC: "2.0", ID: req.ID}
		switch req.Method {
		case "eth_chainId":
			resp.Result, _ = json.Marshal("0x" + strconv.FormatUint(n.chainID.Load(), 16))
		case "eth_accounts", "eth_requestAccounts":
			resp.Result, _ = json.Marshal([]string{operator.Hex()})
		default:
			resp.Error = &rpc.RPCError{Code: rpc.CodeMethodNotFound, Message: "method not found"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return n, srv
}

func testConfig(rpcURL string) *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{
			RPCURL:               rpcURL,
			RPCTimeout:           5 * time.Second,
			AccessManagerAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
			TraceabilityAddress:  "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
			RateLimitRPS:         100,
			RateLimitBurst:       100,
			BreakerFailures:      5,
			BreakerOpenTimeout:   time.Second,
			ReceiptPollInterval:  10 * time.Millisecond,
			WatchInterval:        time.Second,
		},
		Session: config.SessionConfig{Backend: config.SessionBackendMemory},
		Cache:   config.CacheConfig{AccountSize: 8, AccountTTL: time.Second},
		Server:  config.ServerConfig{Addr: "127.0.0.1:0", WritesPerMinute: 60},
	}
}

func TestNew_BindsAndRebindsOnChainChange(t *testing.T) {
	_, srv := newFakeNode(t)

	a, err := New(context.Background(), testConfig(srv.URL), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, 1, a.bindings)

	addr, err := a.Session.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, operator, addr)
	assert.Equal(t, uint64(31337), a.Session.ChainID())

	a.Session.HandleChainChanged(1)
	assert.Equal(t, 2, a.bindings)
	assert.True(t, a.Tokens.Ready(), "services must be bound again after a chain change")

	// Same chain is not a change.
	a.Session.HandleChainChanged(1)
	assert.Equal(t, 2, a.bindings)
}

func TestNew_RestoresPersistedSession(t *testing.T) {
	_, srv := newFakeNode(t)

	seeded := memory.NewSessionStore()
	require.NoError(t, seeded.Set(context.Background(), store.KeyAccount, []byte(operator.Hex())))

	orig := newRedisSessionStore
	t.Cleanup(func() { newRedisSessionStore = orig })
	newRedisSessionStore = func(context.Context, config.RedisConfig, time.Duration) (store.SessionStore, error) {
		return seeded, nil
	}

	cfg := testConfig(srv.URL)
	cfg.Session.Backend = config.SessionBackendRedis
	a, err := New(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	addr, ok := a.Session.Address()
	require.True(t, ok)
	assert.Equal(t, operator, addr)
}

func TestNew_Failures(t *testing.T) {
	_, srv := newFakeNode(t)

	t.Run("redis unavailable", func(t *testing.T) {
		orig := newRedisSessionStore
		t.Cleanup(func() { newRedisSessionStore = orig })
		newRedisSessionStore = func(context.Context, config.RedisConfig, time.Duration) (store.SessionStore, error) {
			return nil, errors.New("dial tcp: connection refused")
		}

		cfg := testConfig(srv.URL)
		cfg.Session.Backend = config.SessionBackendRedis
		_, err := New(context.Background(), cfg, slog.Default())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "initialize redis session store")
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(srv.URL)
		cfg.Session.Backend = "etcd"
		_, err := New(context.Background(), cfg, slog.Default())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported session backend "etcd"`)
	})

	t.Run("journal database unreachable", func(t *testing.T) {
		orig := openJournalDB
		t.Cleanup(func() { openJournalDB = orig })
		openJournalDB = func(context.Context, config.DBConfig) (*postgres.DB, error) {
			return nil, errors.New("connection refused")
		}

		cfg := testConfig(srv.URL)
		cfg.DB.URL = "postgres://localhost/journal"
		_, err := New(context.Background(), cfg, slog.Default())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect journal database")
	})

	t.Run("malformed private key", func(t *testing.T) {
		cfg := testConfig(srv.URL)
		cfg.Ledger.PrivateKey = "0xnothex"
		_, err := New(context.Background(), cfg, slog.Default())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load signer")
	})
}

func TestNew_SignerSkipsAccountRequest(t *testing.T) {
	_, srv := newFakeNode(t)

	cfg := testConfig(srv.URL)
	cfg.Ledger.PrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	a, err := New(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	addr, err := a.Session.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), addr)
}

func TestNew_AlertingWrapsJournal(t *testing.T) {
	_, srv := newFakeNode(t)

	a, err := New(context.Background(), testConfig(srv.URL), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.IsType(t, ledger.NopJournal{}, a.Journal)

	cfg := testConfig(srv.URL)
	cfg.Alert = config.AlertConfig{WebhookURL: "http://127.0.0.1:1/hook", Cooldown: time.Minute}
	b, err := New(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	assert.IsType(t, &alert.Journal{}, b.Journal)
}

func TestHandler_ServesHealthAndSession(t *testing.T) {
	_, srv := newFakeNode(t)

	a, err := New(context.Background(), testConfig(srv.URL), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	handler, stop := a.Handler()
	t.Cleanup(stop)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["connected"])
}

func TestServe_StopsOnCancel(t *testing.T) {
	_, srv := newFakeNode(t)

	a, err := New(context.Background(), testConfig(srv.URL), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
