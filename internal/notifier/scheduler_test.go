package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/certwatch/pkg/logger"
	"github.com/mr-karan/certwatch/pkg/models"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop() { f.once.Do(func() { close(f.stopped) }) }

type countingRunner struct {
	runs chan models.TriggeredBy
	err  error
}

func (c *countingRunner) Run(_ context.Context, by models.TriggeredBy) (*RunReport, error) {
	c.runs <- by
	if c.err != nil {
		return nil, c.err
	}
	return &RunReport{TriggeredBy: by}, nil
}

type fakeLease struct {
	mu       sync.Mutex
	granted  bool
	err      error
	calls    chan string
	gotTTL   time.Duration
	gotNow   time.Time
	released []string
}

func (f *fakeLease) TryAcquireLease(_ context.Context, name, holder string, ttl time.Duration, now time.Time) (bool, error) {
	f.mu.Lock()
	f.gotTTL, f.gotNow = ttl, now
	f.mu.Unlock()
	f.calls <- holder
	return f.granted, f.err
}

func (f *fakeLease) ReleaseLease(_ context.Context, name, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, holder)
	return nil
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduler")
	}
	var zero T
	return zero
}

func TestSchedulerRunsOnStartAndOnTick(t *testing.T) {
	ticker := newFakeTicker()
	runner := &countingRunner{runs: make(chan models.TriggeredBy, 4)}
	var gotInterval time.Duration

	s := NewScheduler(SchedulerOptions{
		Runner:     runner,
		Interval:   6 * time.Hour,
		RunOnStart: true,
		NewTicker: func(d time.Duration) Ticker {
			gotInterval = d
			return ticker
		},
		Logger: logger.Discard(),
	})
	s.Start(context.Background())
	s.Start(context.Background()) // second call is ignored

	assert.Equal(t, models.TriggeredBySystem, receive(t, runner.runs))

	ticker.ch <- time.Now()
	assert.Equal(t, models.TriggeredBySystem, receive(t, runner.runs))

	s.Stop()
	s.Stop()
	assert.Equal(t, 6*time.Hour, gotInterval)
	receive(t, ticker.stopped)
	assert.Len(t, runner.runs, 0)
}

func TestSchedulerWithoutRunOnStartWaitsForTick(t *testing.T) {
	ticker := newFakeTicker()
	runner := &countingRunner{runs: make(chan models.TriggeredBy, 4), err: errors.New("boom")}

	s := NewScheduler(SchedulerOptions{
		Runner:    runner,
		NewTicker: func(time.Duration) Ticker { return ticker },
		Logger:    logger.Discard(),
	})
	s.Start(context.Background())

	// The unbuffered tick is only accepted once the loop is running, and
	// the run happens before the loop can accept anything else.
	ticker.ch <- time.Now()
	receive(t, runner.runs)
	s.Stop()
	assert.Len(t, runner.runs, 0)
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	ticker := newFakeTicker()
	runner := &countingRunner{runs: make(chan models.TriggeredBy, 1)}
	ctx, cancel := context.WithCancel(context.Background())

	s := NewScheduler(SchedulerOptions{
		Runner:    runner,
		NewTicker: func(time.Duration) Ticker { return ticker },
		Logger:    logger.Discard(),
	})
	s.Start(ctx)
	cancel()

	receive(t, ticker.stopped)
	s.Stop()
}

func TestSchedulerLeaseHeldElsewhereSkipsRun(t *testing.T) {
	ticker := newFakeTicker()
	runner := &countingRunner{runs: make(chan models.TriggeredBy, 1)}
	lease := &fakeLease{granted: false, calls: make(chan string, 1)}
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	s := NewScheduler(SchedulerOptions{
		Runner:     runner,
		Interval:   24 * time.Hour,
		RunOnStart: true,
		Lease:      lease,
		InstanceID: "node-b",
		Now:        func() time.Time { return now },
		NewTicker:  func(time.Duration) Ticker { return ticker },
		Logger:     logger.Discard(),
	})
	s.Start(context.Background())

	assert.Equal(t, "node-b", receive(t, lease.calls))
	s.Stop()

	assert.Len(t, runner.runs, 0)
	lease.mu.Lock()
	defer lease.mu.Unlock()
	assert.Empty(t, lease.released, "a lease that was never granted is not released")
	assert.Equal(t, 36*time.Hour, lease.gotTTL)
	assert.Equal(t, now, lease.gotNow)
}

func TestSchedulerLeaseGrantedRuns(t *testing.T) {
	ticker := newFakeTicker()
	runner := &countingRunner{runs: make(chan models.TriggeredBy, 1)}
	lease := &fakeLease{granted: true, calls: make(chan string, 1)}

	s := NewScheduler(SchedulerOptions{
		Runner:     runner,
		RunOnStart: true,
		Lease:      lease,
		LeaseTTL:   time.Hour,
		InstanceID: "node-a",
		NewTicker:  func(time.Duration) Ticker { return ticker },
		Logger:     logger.Discard(),
	})
	s.Start(context.Background())

	receive(t, lease.calls)
	require.Equal(t, models.TriggeredBySystem, receive(t, runner.runs))
	s.Stop()

	lease.mu.Lock()
	defer lease.mu.Unlock()
	assert.Equal(t, []string{"node-a"}, lease.released)
}
