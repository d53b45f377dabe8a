package tabs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/primebank/primebank-web/internal/session"
	"github.com/primebank/primebank-web/pkg/logger"
	"github.com/primebank/primebank-web/pkg/metrics"
)

var log = logger.Named("tabs")

var ErrClosed = errors.New("tab registry closed")

// Factory builds the coordinator of a new tab. It must not start it.
type Factory func(ctx context.Context, id string) (*session.Coordinator, error)

type entry struct {
	coord    *session.Coordinator
	lastSeen time.Time
}

// Registry holds one running coordinator per browser tab. Tabs unseen for
// longer than the idle timeout are stopped and dropped; whatever their storage
// area persisted stays behind for the next visit.
type Registry struct {
	factory Factory
	idle    time.Duration
	clock   clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	tabs   map[string]*entry
	closed bool
}

func NewRegistry(factory Factory, idle time.Duration) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		factory: factory,
		idle:    idle,
		clock:   clockwork.NewRealClock(),
		ctx:     ctx,
		cancel:  cancel,
		tabs:    make(map[string]*entry),
	}
}

// Acquire returns the coordinator of tab id, creating and starting it on first
// use. The factory hydrates from storage, so it runs without holding the
// registry lock; when two requests race to open the same tab the first one
// registered wins and the other coordinator is dropped unstarted.
func (r *Registry) Acquire(ctx context.Context, id string) (*session.Coordinator, error) {
	if coord, found, err := r.lookup(id); found || err != nil {
		return coord, err
	}

	coord, err := r.factory(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if e, ok := r.tabs[id]; ok {
		e.lastSeen = r.clock.Now()
		return e.coord, nil
	}
	r.tabs[id] = &entry{coord: coord, lastSeen: r.clock.Now()}
	metrics.ActiveTabs.Set(float64(len(r.tabs)))
	// timers outlive the request that opened the tab
	coord.Start(r.ctx)
	log.Debugf("tab opened id=%s", id)
	return coord, nil
}

func (r *Registry) lookup(id string) (coord *session.Coordinator, found bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrClosed
	}
	if e, ok := r.tabs[id]; ok {
		e.lastSeen = r.clock.Now()
		return e.coord, true, nil
	}
	return nil, false, nil
}

// Get returns the coordinator of an existing tab without creating one.
func (r *Registry) Get(id string) (*session.Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tabs[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.clock.Now()
	return e.coord, true
}

// Remove stops and drops tab id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.tabs[id]
	if ok {
		delete(r.tabs, id)
		metrics.ActiveTabs.Set(float64(len(r.tabs)))
	}
	r.mu.Unlock()
	if ok {
		e.coord.Stop()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

// Sweep stops every tab idle for longer than the idle timeout and returns how
// many were evicted.
func (r *Registry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-r.idle)
	var stale []*session.Coordinator
	r.mu.Lock()
	for id, e := range r.tabs {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.coord)
			delete(r.tabs, id)
		}
	}
	metrics.ActiveTabs.Set(float64(len(r.tabs)))
	r.mu.Unlock()

	for _, c := range stale {
		c.Stop()
	}
	if len(stale) > 0 {
		log.Infof("evicted %d idle tabs", len(stale))
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done or the registry is closed.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := r.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		case <-t.Chan():
			r.Sweep()
		}
	}
}

// Close stops every tab. Acquire fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := make([]*session.Coordinator, 0, len(r.tabs))
	for _, e := range r.tabs {
		all = append(all, e.coord)
	}
	r.tabs = make(map[string]*entry)
	metrics.ActiveTabs.Set(0)
	r.mu.Unlock()

	r.cancel()
	for _, c := range all {
		c.Stop()
	}
}
