package alert

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/emperorhan/recycle-trace/internal/circuitbreaker"
	"github.com/emperorhan/recycle-trace/internal/ledger"
)

const deliveryTimeout = 10 * time.Second

// dispatch sends without blocking the caller. Hooks run inside the breaker's
// lock and on the transaction path.
func dispatch(a Alerter, logger *slog.Logger, alert Alert, done func()) {
	go func() {
		if done != nil {
			defer done()
		}
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		if err := a.Send(ctx, alert); err != nil {
			logger.Warn("alert delivery failed", "type", alert.Type, "source", alert.Source, "error", err)
		}
	}()
}

// BreakerHook raises Unhealthy when the endpoint's breaker opens and Recovery
// when it closes again. Half-open probes are not reported.
type BreakerHook struct {
	alerter  Alerter
	endpoint string
	logger   *slog.Logger
	sent     func()
}

func NewBreakerHook(a Alerter, endpoint string, logger *slog.Logger) *BreakerHook {
	return &BreakerHook{alerter: a, endpoint: endpoint, logger: logger.With("component", "alert_breaker")}
}

// OnStateChange matches circuitbreaker.Config.OnStateChange.
func (h *BreakerHook) OnStateChange(from, to circuitbreaker.State) {
	var a Alert
	switch to {
	case circuitbreaker.StateOpen:
		a = Alert{
			Type:    AlertTypeUnhealthy,
			Source:  h.endpoint,
			Title:   "Ledger endpoint unavailable",
			Message: "The RPC circuit breaker opened; ledger calls are refused until a probe succeeds.",
		}
	case circuitbreaker.StateClosed:
		if from == circuitbreaker.StateClosed {
			return
		}
		a = Alert{
			Type:    AlertTypeRecovery,
			Source:  h.endpoint,
			Title:   "Ledger endpoint recovered",
			Message: "The RPC circuit breaker closed.",
		}
	default:
		return
	}
	a.Fields = map[string]string{"from": from.String(), "to": to.String()}
	dispatch(h.alerter, h.logger, a, h.sent)
}

// Journal records through next and raises TxReverted for every reverted
// transaction.
type Journal struct {
	ledger.Journal
	alerter Alerter
	logger  *slog.Logger
	sent    func()
}

var _ ledger.Journal = (*Journal)(nil)

func NewJournal(next ledger.Journal, a Alerter, logger *slog.Logger) *Journal {
	if next == nil {
		next = ledger.NopJournal{}
	}
	return &Journal{Journal: next, alerter: a, logger: logger.With("component", "alert_journal")}
}

func (j *Journal) Record(ctx context.Context, e ledger.JournalEntry) error {
	err := j.Journal.Record(ctx, e)
	if e.Status == ledger.TxReverted {
		dispatch(j.alerter, j.logger, Alert{
			Type:    AlertTypeTxReverted,
			Source:  e.Contract + "." + e.Method,
			Title:   "Transaction reverted",
			Message: e.Error,
			Fields: map[string]string{
				"from":    e.From.Hex(),
				"tx_hash": e.TxHash.Hex(),
				"block":   strconv.FormatUint(e.BlockNumber, 10),
			},
		}, j.sent)
	}
	return err
}
