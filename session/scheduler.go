package session

import (
	"sync"
	"time"

	"github.com/identkit/identcli/token"
)

// DefaultLeadTime is how long before the access credential's expiry the
// proactive renewal fires.
const DefaultLeadTime = 2 * time.Minute

// TimerHandle is the cancellable half of an armed timer.
type TimerHandle interface {
	Stop() bool
}

// TimerFactory arms a timer that calls fire once after d. Injectable
// for testing; the default is time.AfterFunc.
type TimerFactory func(d time.Duration, fire func()) TimerHandle

// Scheduler arms at most one timer that triggers a renewal ahead of the
// access credential's expiry. Re-arming always cancels the previous
// timer first, so two consecutive Arm calls leave exactly one pending
// fire.
type Scheduler struct {
	trigger  func()
	lead     time.Duration
	now      func() time.Time
	newTimer TimerFactory

	mu    sync.Mutex
	timer TimerHandle
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLead overrides the renewal lead time.
func WithSchedulerLead(lead time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.lead = lead
	}
}

// WithSchedulerNow overrides the clock (primarily for testing).
func WithSchedulerNow(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithSchedulerTimerFactory overrides timer creation (primarily for
// testing).
func WithSchedulerTimerFactory(factory TimerFactory) SchedulerOption {
	return func(s *Scheduler) {
		s.newTimer = factory
	}
}

// NewScheduler creates a Scheduler that invokes trigger when a renewal
// is due.
func NewScheduler(trigger func(), options ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		trigger: trigger,
		lead:    DefaultLeadTime,
		now:     time.Now,
		newTimer: func(d time.Duration, fire func()) TimerHandle {
			return time.AfterFunc(d, fire)
		},
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Lead returns the configured renewal lead time.
func (s *Scheduler) Lead() time.Duration {
	return s.lead
}

// Arm schedules a renewal for the credential's expiry minus the lead
// time. An undecodable credential arms nothing: the caller must recover
// through re-authentication. A fire time already in the past triggers
// the renewal synchronously.
func (s *Scheduler) Arm(accessCredential string) {
	expMillis, ok := token.ExpiryMillis(accessCredential)
	if !ok {
		s.Disarm()
		return
	}

	fireIn := time.UnixMilli(expMillis).Add(-s.lead).Sub(s.now())
	if fireIn <= 0 {
		s.Disarm()
		s.trigger()
		return
	}
	s.swapTimer(fireIn)
}

// ArmRetry schedules a renewal after a fixed delay, used for transient
// renewal failures.
func (s *Scheduler) ArmRetry(delay time.Duration) {
	s.swapTimer(delay)
}

// swapTimer cancels the pending timer and installs its replacement
// under one lock hold, so racing arms cannot both leave a timer live.
func (s *Scheduler) swapTimer(fireIn time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.newTimer(fireIn, s.trigger)
}

// Disarm cancels the pending timer, if any. Idempotent.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
