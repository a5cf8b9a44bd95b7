package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emperorhan/recycle-trace/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	staleLimiterTTL = 10 * time.Minute
	cleanupInterval = time.Minute

	defaultWritesPerMinute = 20
)

// limitRule binds a named bucket to requests matching method and path prefix.
// An empty method or prefix matches anything.
type limitRule struct {
	name   string
	method string
	prefix string
	limit  rate.Limit
	burst  int
}

func (r limitRule) matches(method, path string) bool {
	if r.method != "" && r.method != method {
		return false
	}
	return strings.HasPrefix(path, r.prefix)
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware keeps one token bucket per rule and client. Writes
// submit ledger transactions, so their buckets are sized per minute while
// reads share a generous per-second bucket.
type RateLimitMiddleware struct {
	rules      []limitRule
	trustProxy bool
	logger     *slog.Logger
	nowFunc    func() time.Time

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

type RateLimitOption func(*RateLimitMiddleware)

// WithWritesPerMinute sets the per-client budget for token, transfer and
// account mutations. Connect attempts get a third of it.
func WithWritesPerMinute(n int) RateLimitOption {
	return func(rl *RateLimitMiddleware) {
		if n > 0 {
			rl.rules = writeRules(n)
		}
	}
}

// WithTrustProxy keys clients by X-Forwarded-For or X-Real-IP. Only enable
// it behind a proxy that overwrites those headers.
func WithTrustProxy(trust bool) RateLimitOption {
	return func(rl *RateLimitMiddleware) { rl.trustProxy = trust }
}

func writeRules(perMinute int) []limitRule {
	perSecond := rate.Limit(float64(perMinute) / 60)
	burst := max(1, perMinute/4)
	return []limitRule{
		{name: "connect", method: http.MethodPost, prefix: "/api/v1/session/connect", limit: perSecond / 3, burst: max(1, burst/2)},
		{name: "accounts", method: http.MethodPost, prefix: "/api/v1/accounts", limit: perSecond / 2, burst: burst},
		{name: "tokens", method: http.MethodPost, prefix: "/api/v1/tokens", limit: perSecond, burst: burst},
		{name: "transfers", method: http.MethodPost, prefix: "/api/v1/transfers", limit: perSecond, burst: burst},
		{name: "read", limit: 5, burst: 20},
	}
}

// NewRateLimitMiddleware starts a cleanup goroutine; call Stop to release it.
func NewRateLimitMiddleware(logger *slog.Logger, opts ...RateLimitOption) *RateLimitMiddleware {
	rl := &RateLimitMiddleware{
		rules:    writeRules(defaultWritesPerMinute),
		logger:   logger.With("component", "api_ratelimit"),
		nowFunc:  time.Now,
		limiters: make(map[string]*limiterEntry),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rl)
	}
	go rl.cleanupLoop()
	return rl
}

// Stop is idempotent.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimitMiddleware) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictStale()
		}
	}
}

func (rl *RateLimitMiddleware) evictStale() {
	now := rl.nowFunc()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > staleLimiterTTL {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimitMiddleware) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimitMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule := rl.match(r.Method, r.URL.Path)
		client := rl.clientKey(r)
		now := rl.nowFunc()

		res := rl.limiter(rule, client, now).ReserveN(now, 1)
		if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
			res.CancelAt(now)
			metrics.APIRateLimited.WithLabelValues(rule.name).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(delay)))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:     "rate limit exceeded",
				RequestID: w.Header().Get(requestIDHeader),
			})
			rl.logger.Warn("api rate limit exceeded",
				"rule", rule.name,
				"method", r.Method,
				"path", r.URL.Path,
				"client", client,
			)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

func (rl *RateLimitMiddleware) clientKey(r *http.Request) string {
	if rl.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimitMiddleware) match(method, path string) limitRule {
	for _, rule := range rl.rules {
		if rule.matches(method, path) {
			return rule
		}
	}
	return rl.rules[len(rl.rules)-1]
}

func (rl *RateLimitMiddleware) limiter(rule limitRule, client string, now time.Time) *rate.Limiter {
	key := rule.name + "|" + client

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	l := rate.NewLimiter(rule.limit, rule.burst)
	rl.limiters[key] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}
