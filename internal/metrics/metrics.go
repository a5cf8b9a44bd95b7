package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger access, transaction lifecycle and client-side cache counters.

var (
	// Provider (JSON-RPC)
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total JSON-RPC calls by method and outcome class",
	}, []string{"method", "status"})

	RPCCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracectl",
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "JSON-RPC round-trip duration",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Calls that had to wait for a rate limiter token",
	}, []string{"endpoint"})

	ProviderBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tracectl",
		Subsystem: "rpc",
		Name:      "breaker_state",
		Help:      "Provider circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"endpoint"})

	// Contract reads
	ContractCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "contract",
		Name:      "calls_total",
		Help:      "Total read-only contract calls",
	}, []string{"contract", "method", "status"})

	ContractEventQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "contract",
		Name:      "event_queries_total",
		Help:      "Total event-log queries",
	}, []string{"contract", "event", "status"})

	// Transactions
	TxSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "tx",
		Name:      "submitted_total",
		Help:      "Transactions broadcast to the provider",
	}, []string{"contract", "method"})

	TxOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "tx",
		Name:      "outcome_total",
		Help:      "Transaction outcomes (confirmed, reverted, declined, failed)",
	}, []string{"contract", "method", "outcome"})

	TxConfirmLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracectl",
		Subsystem: "tx",
		Name:      "confirm_duration_seconds",
		Help:      "Time from broadcast to receipt",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120, 300},
	}, []string{"contract", "method"})

	// Adapters
	DecodeDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "adapter",
		Name:      "dropped_records_total",
		Help:      "List entries dropped because they failed to decode",
	}, []string{"record", "reason"})

	// View-model caches
	AccountCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "accounts",
		Name:      "cache_hits_total",
		Help:      "Current-account lookups served from cache",
	})

	AccountCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "accounts",
		Name:      "cache_misses_total",
		Help:      "Current-account lookups that went to the ledger",
	})

	AccountSnapshotFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "accounts",
		Name:      "snapshot_fallbacks_total",
		Help:      "Current-account lookups answered from the persisted snapshot",
	})

	// Session
	SessionEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "session",
		Name:      "events_total",
		Help:      "Wallet session events by kind",
	}, []string{"kind"})

	SessionWatcherErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "session",
		Name:      "watcher_errors_total",
		Help:      "Failed account/network polls",
	})

	// Journal database pool
	DBPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracectl",
		Subsystem: "journal",
		Name:      "db_pool_open",
		Help:      "Open connections in the journal pool",
	})

	DBPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracectl",
		Subsystem: "journal",
		Name:      "db_pool_in_use",
		Help:      "Connections currently in use",
	})

	DBPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracectl",
		Subsystem: "journal",
		Name:      "db_pool_idle",
		Help:      "Idle connections",
	})

	DBPoolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracectl",
		Subsystem: "journal",
		Name:      "db_pool_wait_count",
		Help:      "Total connections waited for",
	})

	DBPoolWaitDurationSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracectl",
		Subsystem: "journal",
		Name:      "db_pool_wait_duration_seconds",
		Help:      "Total time blocked waiting for a connection",
	})

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Dashboard API requests by route and status code",
	}, []string{"route", "code"})

	APIRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-IP rate limiter",
	}, []string{"endpoint"})

	// Operator alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts delivered by channel and type",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracectl",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by the cooldown window",
	}, []string{"channel", "alert_type"})
)
