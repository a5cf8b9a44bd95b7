package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emperorhan/recycle-trace/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureServer records request bodies and answers with status.
type captureServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies [][]byte
}

func newCaptureServer(t *testing.T, status int) *captureServer {
	t.Helper()
	cs := &captureServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		cs.bodies = append(cs.bodies, body)
		cs.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *captureServer) count() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.bodies)
}

func (cs *captureServer) last(t *testing.T, v any) {
	t.Helper()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	require.NotEmpty(t, cs.bodies)
	require.NoError(t, json.Unmarshal(cs.bodies[len(cs.bodies)-1], v))
}

func breakerAlert(source string) Alert {
	return Alert{
		Type:    AlertTypeUnhealthy,
		Source:  source,
		Title:   "Ledger endpoint unavailable",
		Message: "RPC endpoint is not responding",
		Fields:  map[string]string{"from": "closed", "to": "open"},
	}
}

func TestMultiAlerter_FansOut(t *testing.T) {
	slackSrv := newCaptureServer(t, http.StatusOK)
	hookSrv := newCaptureServer(t, http.StatusOK)
	sent := metrics.AlertsSentTotal.WithLabelValues("webhook", string(AlertTypeUnhealthy))
	before := testutil.ToFloat64(sent)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewSlackAlerter(slackSrv.URL), NewWebhookAlerter(hookSrv.URL))
	require.NoError(t, multi.Send(context.Background(), breakerAlert("http://node-a:8545")))

	assert.Equal(t, 1, slackSrv.count())
	assert.Equal(t, 1, hookSrv.count())
	assert.Equal(t, before+1, testutil.ToFloat64(sent))
}

func TestMultiAlerter_CooldownPerTypeAndSource(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)
	skipped := metrics.AlertsCooldownSkipped.WithLabelValues("webhook", string(AlertTypeUnhealthy))
	before := testutil.ToFloat64(skipped)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewWebhookAlerter(srv.URL))
	ctx := context.Background()

	require.NoError(t, multi.Send(ctx, breakerAlert("http://node-a:8545")))
	require.NoError(t, multi.Send(ctx, breakerAlert("http://node-a:8545")))
	assert.Equal(t, 1, srv.count(), "repeat inside cooldown is dropped")
	assert.Equal(t, before+1, testutil.ToFloat64(skipped))

	require.NoError(t, multi.Send(ctx, breakerAlert("http://node-b:8545")))
	recovered := breakerAlert("http://node-a:8545")
	recovered.Type = AlertTypeRecovery
	require.NoError(t, multi.Send(ctx, recovered))
	assert.Equal(t, 3, srv.count(), "other sources and types are not suppressed")
}

func TestMultiAlerter_CooldownExpires(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)
	multi := NewMultiAlerter(time.Millisecond, testLogger(), NewWebhookAlerter(srv.URL))

	require.NoError(t, multi.Send(context.Background(), breakerAlert("rpc")))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, multi.Send(context.Background(), breakerAlert("rpc")))

	assert.Equal(t, 2, srv.count())
}

func TestMultiAlerter_PartialFailure(t *testing.T) {
	failing := newCaptureServer(t, http.StatusInternalServerError)
	good := newCaptureServer(t, http.StatusOK)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewWebhookAlerter(failing.URL), NewWebhookAlerter(good.URL))
	err := multi.Send(context.Background(), breakerAlert("rpc"))

	assert.EqualError(t, err, "webhook returned status 500")
	assert.Equal(t, 1, good.count(), "healthy channel still delivers")
}

func TestSlackAlerter_Text(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)
	slack := NewSlackAlerter(srv.URL)

	require.NoError(t, slack.Send(context.Background(), Alert{
		Type:    AlertTypeTxReverted,
		Source:  "Traceability.rewardToken",
		Title:   "Transaction reverted",
		Message: "token not processed",
		Fields:  map[string]string{"tx_hash": "0xabc", "block": "1003"},
	}))

	var payload map[string]string
	srv.last(t, &payload)
	text := payload["text"]
	assert.True(t, strings.HasPrefix(text, ":no_entry: *[TX_REVERTED]* Traceability.rewardToken: Transaction reverted\ntoken not processed\n"), text)
	assert.Less(t, strings.Index(text, "- *block*: 1003"), strings.Index(text, "- *tx_hash*: 0xabc"))

	for typ, emoji := range map[AlertType]string{
		AlertTypeUnhealthy: ":warning:",
		AlertTypeRecovery:  ":white_check_mark:",
	} {
		require.NoError(t, slack.Send(context.Background(), Alert{Type: typ, Source: "rpc"}))
		srv.last(t, &payload)
		assert.True(t, strings.HasPrefix(payload["text"], emoji), "%s: %s", typ, payload["text"])
	}
}

func TestWebhookAlerter_Payload(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)
	before := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, NewWebhookAlerter(srv.URL).Send(context.Background(), Alert{
		Type:    AlertTypeTxReverted,
		Source:  "AccessManager.approveRole",
		Title:   "Transaction reverted",
		Message: "caller is not an admin",
		Fields:  map[string]string{"tx_hash": "0xabc", "block": "12"},
	}))

	var payload struct {
		Type    string            `json:"type"`
		Source  string            `json:"source"`
		Title   string            `json:"title"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
		Time    time.Time         `json:"time"`
	}
	srv.last(t, &payload)
	assert.Equal(t, "TX_REVERTED", payload.Type)
	assert.Equal(t, "AccessManager.approveRole", payload.Source)
	assert.Equal(t, "caller is not an admin", payload.Message)
	assert.Equal(t, map[string]string{"tx_hash": "0xabc", "block": "12"}, payload.Fields)
	assert.False(t, payload.Time.Before(before))
	assert.WithinDuration(t, time.Now(), payload.Time, 5*time.Second)
}

func TestPost_Unreachable(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)
	url := srv.URL
	srv.Close()

	err := NewWebhookAlerter(url).Send(context.Background(), breakerAlert("rpc"))
	assert.ErrorContains(t, err, "send webhook alert")
}
