package phase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TransitionFunc is invoked on every phase transition with the old and
// new states. Callbacks run on the manager goroutine; keep them short
// (enqueue and return).
type TransitionFunc func(from, to State)

// Manager polls the wall clock and publishes the current phase state
// through a single-writer cell. Validator and matcher read the cell;
// subscribers learn about transitions.
type Manager struct {
	schedule *Schedule
	interval time.Duration
	logger   *zap.Logger

	cell atomic.Value // State

	mu          sync.Mutex
	subscribers []TransitionFunc

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewManager creates a phase manager. interval defaults to 100ms.
func NewManager(schedule *Schedule, interval time.Duration, logger *zap.Logger) *Manager {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		schedule: schedule,
		interval: interval,
		logger:   logger.Named("phase"),
		stopCh:   make(chan struct{}),
	}
	m.cell.Store(schedule.At(time.Now()))
	return m
}

// Current returns the current phase state. Lock-free read.
func (m *Manager) Current() State {
	return m.cell.Load().(State)
}

// Subscribe registers a transition callback. Must be called before
// Start.
func (m *Manager) Subscribe(fn TransitionFunc) {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
}

// Start begins polling until the context is cancelled or Stop is
// called.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop halts the manager and waits for the poll loop to exit.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick(time.Now())
		}
	}
}

// tick evaluates the schedule and publishes a transition if the phase
// changed. Exposed to tests via Advance.
func (m *Manager) tick(now time.Time) {
	next := m.schedule.At(now)
	current := m.Current()
	if next == current {
		return
	}
	m.cell.Store(next)
	m.logger.Info("phase transition",
		zap.String("from", string(current.Name)),
		zap.String("to", string(next.Name)),
		zap.Bool("submit_allowed", next.SubmitAllowed),
		zap.Bool("match_enabled", next.MatchEnabled),
	)
	m.mu.Lock()
	subs := m.subscribers
	m.mu.Unlock()
	for _, fn := range subs {
		fn(current, next)
	}
}

// Advance forces a schedule evaluation at the given instant. Test hook.
func (m *Manager) Advance(now time.Time) {
	m.tick(now)
}
