package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := New(cfg)
	b.nowFn = clock.Now
	return b, clock
}

func TestNew_Defaults(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, StateClosed, b.GetState())
	assert.Equal(t, 5, b.failureThreshold)
	assert.Equal(t, 2, b.successThreshold)
	assert.Equal(t, 30*time.Second, b.openTimeout)
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetState())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.Equal(t, StateClosed, b.GetState())
}

func TestBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Second})

	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	clock.Advance(time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.GetState())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen, "second probe must wait")

	b.RecordSuccess()
	require.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.GetState())
}

func TestBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second})

	b.RecordFailure()
	clock.Advance(2 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetState())

	clock.Advance(500 * time.Millisecond)
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen, "cool-down restarts on reopen")
}

func TestBreaker_ExecuteIgnoresUnclassifiedErrors(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1})
	appErr := errors.New("execution reverted")
	upstreamErr := errors.New("connection refused")
	isUpstream := func(err error) bool { return errors.Is(err, upstreamErr) }

	err := b.Execute(func() error { return appErr }, isUpstream)
	assert.ErrorIs(t, err, appErr)
	assert.Equal(t, StateClosed, b.GetState())

	err = b.Execute(func() error { return upstreamErr }, isUpstream)
	assert.ErrorIs(t, err, upstreamErr)
	assert.Equal(t, StateOpen, b.GetState())

	called := false
	err = b.Execute(func() error { called = true; return nil }, isUpstream)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions [][2]State
	b, clock := newTestBreaker(Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, [2]State{from, to})
		},
	})

	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(time.Second)
	require.NoError(t, b.Allow())
	b.RecordSuccess()

	assert.Equal(t, [][2]State{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, transitions)
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	b := New(Config{FailureThreshold: 100})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = b.Allow()
			b.RecordFailure()
		}()
		go func() {
			defer wg.Done()
			_ = b.Allow()
			b.RecordSuccess()
		}()
	}
	wg.Wait()

	assert.Contains(t, []State{StateClosed, StateOpen, StateHalfOpen}, b.GetState())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
