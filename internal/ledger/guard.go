package ledger

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/emperorhan/recycle-trace/internal/circuitbreaker"
	"github.com/emperorhan/recycle-trace/internal/ledger/ratelimit"
	"github.com/emperorhan/recycle-trace/internal/ledger/rpc"
	"github.com/emperorhan/recycle-trace/internal/metrics"
	"github.com/emperorhan/recycle-trace/internal/tracing"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Guard wraps a Provider with rate limiting, a circuit breaker, metrics, and
// a span per call.
type Guard struct {
	next     Provider
	endpoint string
	limiter  *ratelimit.Limiter
	breaker  *circuitbreaker.Breaker
	tracer   trace.Tracer
	logger   *slog.Logger
}

type GuardOption func(*Guard)

func WithRateLimit(rps float64, burst int) GuardOption {
	return func(g *Guard) {
		g.limiter = ratelimit.NewLimiter(rps, burst, g.endpoint)
	}
}

func WithBreaker(cfg circuitbreaker.Config) GuardOption {
	return func(g *Guard) {
		user := cfg.OnStateChange
		cfg.OnStateChange = func(from, to circuitbreaker.State) {
			metrics.ProviderBreakerState.WithLabelValues(g.endpoint).Set(float64(to))
			g.logger.Warn("provider breaker state changed", "from", from.String(), "to", to.String())
			if user != nil {
				user(from, to)
			}
		}
		g.breaker = circuitbreaker.New(cfg)
	}
}

func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGuard(next Provider, endpoint string, opts ...GuardOption) *Guard {
	g := &Guard{
		next:     next,
		endpoint: endpoint,
		tracer:   tracing.Tracer("tracectl/ledger"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "provider_guard", "endpoint", endpoint)
	return g
}

var _ Provider = (*Guard)(nil)

func guarded[T any](ctx context.Context, g *Guard, method string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := g.tracer.Start(ctx, "rpc."+method, trace.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("rpc.endpoint", g.endpoint),
	))
	defer span.End()

	var out T
	call := func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		start := time.Now()
		var err error
		out, err = fn(ctx)
		metrics.RPCCallLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return err
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(call, IsUpstreamFailure)
	} else {
		err = call()
	}

	status := "ok"
	if err != nil {
		status = string(Classify(err).Kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}
	metrics.RPCCallsTotal.WithLabelValues(method, status).Inc()
	return out, err
}

func (g *Guard) ChainID(ctx context.Context) (uint64, error) {
	return guarded(ctx, g, "eth_chainId", g.next.ChainID)
}

func (g *Guard) Accounts(ctx context.Context) ([]common.Address, error) {
	return guarded(ctx, g, "eth_accounts", g.next.Accounts)
}

func (g *Guard) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return guarded(ctx, g, "eth_requestAccounts", g.next.RequestAccounts)
}

func (g *Guard) Call(ctx context.Context, args rpc.CallArgs, blockTag string) ([]byte, error) {
	return guarded(ctx, g, "eth_call", func(ctx context.Context) ([]byte, error) {
		return g.next.Call(ctx, args, blockTag)
	})
}

func (g *Guard) EstimateGas(ctx context.Context, args rpc.CallArgs) (uint64, error) {
	return guarded(ctx, g, "eth_estimateGas", func(ctx context.Context) (uint64, error) {
		return g.next.EstimateGas(ctx, args)
	})
}

func (g *Guard) GasPrice(ctx context.Context) (*big.Int, error) {
	return guarded(ctx, g, "eth_gasPrice", g.next.GasPrice)
}

func (g *Guard) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	return guarded(ctx, g, "eth_getTransactionCount", func(ctx context.Context) (uint64, error) {
		return g.next.PendingNonce(ctx, account)
	})
}

func (g *Guard) SendTransaction(ctx context.Context, args rpc.CallArgs) (common.Hash, error) {
	return guarded(ctx, g, "eth_sendTransaction", func(ctx context.Context) (common.Hash, error) {
		return g.next.SendTransaction(ctx, args)
	})
}

func (g *Guard) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	return guarded(ctx, g, "eth_sendRawTransaction", func(ctx context.Context) (common.Hash, error) {
		return g.next.SendRawTransaction(ctx, raw)
	})
}

func (g *Guard) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*rpc.TransactionReceipt, error) {
	return guarded(ctx, g, "eth_getTransactionReceipt", func(ctx context.Context) (*rpc.TransactionReceipt, error) {
		return g.next.GetTransactionReceipt(ctx, hash)
	})
}

func (g *Guard) GetLogs(ctx context.Context, filter rpc.LogFilter) ([]*rpc.Log, error) {
	return guarded(ctx, g, "eth_getLogs", func(ctx context.Context) ([]*rpc.Log, error) {
		return g.next.GetLogs(ctx, filter)
	})
}
