// Package correlator bridges the asynchronous pipeline to synchronous
// REST semantics: each submission parks its HTTP handler on a completion
// signal that a downstream stage fires when it reaches a terminal
// outcome for the request.
package correlator

import (
	"context"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/openalpha/options-exchange/metrics"
)

var (
	// ErrOverloaded is returned when the pending table is at capacity.
	ErrOverloaded = errors.New("pending request table is full")
	// ErrTimeout is returned when the deadline expires before a result
	// arrives.
	ErrTimeout = errors.New("request timed out")
)

// Pending is one in-flight request.
type Pending struct {
	RequestID string
	Deadline  time.Time

	done   chan struct{}
	result any
	once   sync.Once
}

func (p *Pending) resolve(result any) {
	p.once.Do(func() {
		p.result = result
		close(p.done)
	})
}

// Correlator owns the pending-request table. Resolutions arriving after
// a timeout are discarded: abandoned request IDs are tombstoned for a
// short TTL so a late outcome is recognised and dropped.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*Pending

	maxPending     int
	defaultTimeout time.Duration
	abandoned      *gocache.Cache
	logger         *zap.Logger

	janitorStop chan struct{}
	janitorWG   sync.WaitGroup
}

// Config controls table size and timing.
type Config struct {
	DefaultTimeout  time.Duration
	MaxPending      int
	CleanupInterval time.Duration
}

// DefaultConfig mirrors the documented defaults: 5s timeout, 1000
// pending requests.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:  5 * time.Second,
		MaxPending:      1000,
		CleanupInterval: 10 * time.Second,
	}
}

// New creates a correlator and starts its janitor.
func New(cfg Config, logger *zap.Logger) *Correlator {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Second
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 1000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Correlator{
		pending:        make(map[string]*Pending),
		maxPending:     cfg.MaxPending,
		defaultTimeout: cfg.DefaultTimeout,
		abandoned:      gocache.New(2*cfg.DefaultTimeout, cfg.CleanupInterval),
		logger:         logger.Named("correlator"),
		janitorStop:    make(chan struct{}),
	}
	c.janitorWG.Add(1)
	go c.janitor(cfg.CleanupInterval)
	return c
}

// Close stops the janitor.
func (c *Correlator) Close() {
	close(c.janitorStop)
	c.janitorWG.Wait()
}

// Register allocates a request ID and a pending record. Returns
// ErrOverloaded at capacity.
func (c *Correlator) Register() (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) >= c.maxPending {
		return nil, ErrOverloaded
	}
	p := &Pending{
		RequestID: ksuid.New().String(),
		Deadline:  time.Now().Add(c.defaultTimeout),
		done:      make(chan struct{}),
	}
	c.pending[p.RequestID] = p
	metrics.GetCollector().PendingRequests.Set(float64(len(c.pending)))
	return p, nil
}

// Resolve delivers the terminal outcome for a request. Outcomes for
// unknown or abandoned requests are dropped.
func (c *Correlator) Resolve(requestID string, result any) {
	c.mu.Lock()
	p, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
		metrics.GetCollector().PendingRequests.Set(float64(len(c.pending)))
	}
	c.mu.Unlock()

	if !ok {
		if _, late := c.abandoned.Get(requestID); late {
			c.logger.Debug("discarding late outcome", zap.String("request_id", requestID))
		}
		return
	}
	p.resolve(result)
}

// Await blocks until the request resolves, its deadline passes, or ctx
// is cancelled. On timeout the record is abandoned and any later
// outcome discarded.
func (c *Correlator) Await(ctx context.Context, p *Pending) (any, error) {
	timer := time.NewTimer(time.Until(p.Deadline))
	defer timer.Stop()

	select {
	case <-p.done:
		return p.result, nil
	case <-timer.C:
		c.abandon(p)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.abandon(p)
		return nil, ctx.Err()
	}
}

func (c *Correlator) abandon(p *Pending) {
	c.mu.Lock()
	// The resolver may have won the race; in that case the result is
	// already delivered and no tombstone is needed.
	if _, stillPending := c.pending[p.RequestID]; stillPending {
		delete(c.pending, p.RequestID)
		c.abandoned.SetDefault(p.RequestID, struct{}{})
		metrics.GetCollector().PendingRequests.Set(float64(len(c.pending)))
	}
	c.mu.Unlock()
}

// PendingCount returns the current table size.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// janitor expires pending records whose deadline passed without an
// awaiting caller (for example a handler that died mid-request).
func (c *Correlator) janitor(interval time.Duration) {
	defer c.janitorWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.janitorStop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for id, p := range c.pending {
				if now.After(p.Deadline.Add(interval)) {
					delete(c.pending, id)
					c.abandoned.SetDefault(id, struct{}{})
				}
			}
			metrics.GetCollector().PendingRequests.Set(float64(len(c.pending)))
			c.mu.Unlock()
		}
	}
}
