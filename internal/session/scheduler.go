package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/primebank/primebank-web/internal/tokens"
)

// Phase is the scheduler's position in its state machine.
type Phase int

const (
	PhaseInitial Phase = iota
	PhaseBootstrap
	PhaseArmed
	PhaseArmedFallback
	PhaseIdle
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseBootstrap:
		return "bootstrap"
	case PhaseArmed:
		return "armed"
	case PhaseArmedFallback:
		return "armed_fallback"
	}
	return "idle"
}

const (
	DefaultRefreshLead      = 5 * time.Minute
	DefaultFallbackInterval = 10 * time.Minute
)

// Trigger runs one refresh; *Refresher satisfies it.
type Trigger interface {
	Refresh(ctx context.Context) Outcome
}

// SchedulerConfig tunes the scheduler. Zero values take the defaults; a nil
// Clock is the wall clock.
type SchedulerConfig struct {
	Lead     time.Duration
	Fallback time.Duration
	Clock    clockwork.Clock
}

// Scheduler decides when the refresh executor runs. It re-evaluates from
// scratch on every store change, cancelling any armed timer first.
type Scheduler struct {
	store   *Store
	trigger Trigger
	cfg     SchedulerConfig

	mu          sync.Mutex
	phase       Phase
	timer       clockwork.Timer
	fireAt      time.Time
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	running     bool
	bootstrap   bool // bootstrap refresh already fired
	wg          sync.WaitGroup
}

func NewScheduler(store *Store, trigger Trigger, cfg SchedulerConfig) *Scheduler {
	if cfg.Lead <= 0 {
		cfg.Lead = DefaultRefreshLead
	}
	if cfg.Fallback <= 0 {
		cfg.Fallback = DefaultFallbackInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Scheduler{store: store, trigger: trigger, cfg: cfg}
}

// Start subscribes to the store and runs the bootstrap check.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	unsub := s.store.Subscribe(s.evaluate)
	s.mu.Lock()
	s.unsubscribe = unsub
	s.mu.Unlock()

	s.evaluate(s.store.Snapshot())
}

// Stop cancels timers, detaches from the store and waits for in-flight triggers.
// A trigger interrupted by Stop leaves the persisted session untouched.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopTimerLocked()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()
	s.phase = PhaseIdle
	s.mu.Unlock()
	s.wg.Wait()
}

// Phase returns the current phase.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// NextRefresh returns when the armed timer fires; ok is false when none is armed.
func (s *Scheduler) NextRefresh() (at time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return time.Time{}, false
	}
	return s.fireAt, true
}

func (s *Scheduler) evaluate(st State) {
	markAttempt := false

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	now := s.cfg.Clock.Now()

	switch {
	case st.User == nil && !st.HasAttemptedRefresh:
		s.phase = PhaseBootstrap
		if !s.bootstrap {
			s.bootstrap = true
			s.fireLocked()
		}
	case st.User == nil:
		s.phase = PhaseIdle
	case !st.HasAttemptedRefresh:
		// a persisted user is trusted without a network round trip
		s.phase = PhaseBootstrap
		markAttempt = true
	case st.TokenExpiry != nil:
		s.phase = PhaseArmed
		refreshAt := tokens.Time(*st.TokenExpiry).Add(-s.cfg.Lead)
		if !refreshAt.After(now) {
			log.Debugf("token expires within %s, refreshing now", s.cfg.Lead)
			s.fireLocked()
		} else {
			s.armLocked(refreshAt.Sub(now), refreshAt)
		}
	default:
		s.phase = PhaseArmedFallback
		s.armLocked(s.cfg.Fallback, now.Add(s.cfg.Fallback))
	}
	s.mu.Unlock()

	if markAttempt {
		s.store.MarkRefreshAttempt()
	}
}

func (s *Scheduler) armLocked(d time.Duration, at time.Time) {
	var t clockwork.Timer
	t = s.cfg.Clock.AfterFunc(d, func() {
		s.mu.Lock()
		if s.timer != t || !s.running {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.fireLocked()
		s.mu.Unlock()
	})
	s.timer = t
	s.fireAt = at
	log.Debugf("refresh armed phase=%s in=%s", s.phase, d)
}

func (s *Scheduler) fireLocked() {
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.trigger.Refresh(ctx)
	}()
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
