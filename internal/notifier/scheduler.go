package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mr-karan/certwatch/pkg/models"
)

// DefaultLeaseName is the lease shared by all scheduler instances.
const DefaultLeaseName = "expiry_notifications"

// Runner executes one notification run.
type Runner interface {
	Run(ctx context.Context, triggeredBy models.TriggeredBy) (*RunReport, error)
}

// LeaseStore grants a named, time-bounded lease to one holder at a time.
type LeaseStore interface {
	TryAcquireLease(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, name, holder string) error
}

// Ticker is the subset of time.Ticker the scheduler needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop() { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type SchedulerOptions struct {
	Runner     Runner
	Interval   time.Duration
	RunOnStart bool

	// Lease is optional. When set, a tick only runs if this instance holds
	// the lease.
	Lease      LeaseStore
	LeaseName  string
	LeaseTTL   time.Duration
	InstanceID string

	Now       func() time.Time
	NewTicker func(time.Duration) Ticker
	Logger    *slog.Logger
}

// Scheduler triggers a system notification run on a fixed interval.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool

	lease      LeaseStore
	leaseName  string
	leaseTTL   time.Duration
	instanceID string

	now       func() time.Time
	newTicker func(time.Duration) Ticker
	log       *slog.Logger

	mu       sync.Mutex
	started  bool
	holding  bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	leaseName := opts.LeaseName
	if leaseName == "" {
		leaseName = DefaultLeaseName
	}
	leaseTTL := opts.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = interval + interval/2
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newTicker := opts.NewTicker
	if newTicker == nil {
		newTicker = NewRealTicker
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		runner:     opts.Runner,
		interval:   interval,
		runOnStart: opts.RunOnStart,
		lease:      opts.Lease,
		leaseName:  leaseName,
		leaseTTL:   leaseTTL,
		instanceID: opts.InstanceID,
		now:        now,
		newTicker:  newTicker,
		log:        log.With("component", "notification_scheduler"),
		stop:       make(chan struct{}),
	}
}

// Start launches the scheduling loop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.log.Info("starting notification scheduler",
		"interval", s.interval,
		"run_on_start", s.runOnStart,
		"lease", s.lease != nil,
		"instance_id", s.instanceID,
	)

	ticker := s.newTicker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		if s.runOnStart {
			s.tick(ctx)
		}

		for {
			select {
			case <-ticker.C():
				s.tick(ctx)
			case <-s.stop:
				s.log.Info("notification scheduler stopping")
				return
			case <-ctx.Done():
				s.log.Info("notification scheduler context cancelled")
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight run to finish. A lease held
// by this instance is released so a peer can take over on its next tick.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()

	s.mu.Lock()
	holding := s.holding
	s.holding = false
	s.mu.Unlock()
	if !holding {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.lease.ReleaseLease(ctx, s.leaseName, s.instanceID); err != nil {
		s.log.Warn("failed to release scheduler lease", "lease", s.leaseName, "error", err)
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.lease != nil {
		ok, err := s.lease.TryAcquireLease(ctx, s.leaseName, s.instanceID, s.leaseTTL, s.now())
		if err != nil {
			s.log.Error("failed to acquire scheduler lease", "lease", s.leaseName, "error", err)
			return
		}
		s.mu.Lock()
		s.holding = ok
		s.mu.Unlock()
		if !ok {
			s.log.Debug("scheduler lease held by another instance, skipping run", "lease", s.leaseName)
			return
		}
	}

	report, err := s.runner.Run(ctx, models.TriggeredBySystem)
	if err != nil {
		s.log.Error("scheduled notification run failed", "error", err)
		return
	}
	if report.Degraded() {
		s.log.Warn("scheduled notification run finished with failures", "failed", report.Failed, "sent", report.Sent)
	}
}
