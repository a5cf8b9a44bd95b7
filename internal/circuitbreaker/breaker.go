package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker refuses calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker. Zero values select the defaults noted below.
type Config struct {
	FailureThreshold int           // consecutive failures before opening (5)
	SuccessThreshold int           // half-open successes before closing (2)
	OpenTimeout      time.Duration // cool-down before a half-open probe (30s)
	OnStateChange    func(from, to State)
}

// Breaker guards an upstream that can disappear, such as a wallet endpoint
// that was shut down. Only failures the caller classifies as upstream
// failures count; application-level errors leave it untouched.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	probing          bool
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	openedAt         time.Time
	onStateChange    func(from, to State)
	nowFn            func() time.Time
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		openTimeout:      cfg.OpenTimeout,
		onStateChange:    cfg.OnStateChange,
		nowFn:            time.Now,
	}
}

// Execute runs fn if the breaker admits it. isFailure decides whether the
// returned error counts against the upstream; a nil isFailure counts every
// non-nil error.
func (b *Breaker) Execute(fn func() error, isFailure func(error) bool) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	if err != nil && (isFailure == nil || isFailure(err)) {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return err
}

// Allow reports whether a call may proceed. In half-open state a single
// probe is admitted at a time.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == StateHalfOpen {
		b.probing = false
		b.successes++
		if b.successes >= b.successThreshold {
			b.setState(StateClosed)
		}
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.successes = 0
	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.trip()
	case StateClosed:
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

func (b *Breaker) trip() {
	b.openedAt = b.nowFn()
	b.setState(StateOpen)
}

// advance moves an expired open breaker to half-open. Caller holds mu.
func (b *Breaker) advance() {
	if b.state == StateOpen && b.nowFn().Sub(b.openedAt) >= b.openTimeout {
		b.setState(StateHalfOpen)
	}
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.successes = 0
	b.probing = false
	if to == StateClosed {
		b.failures = 0
	}
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
