package correlator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestCorrelator(timeout time.Duration, maxPending int) *Correlator {
	return New(Config{
		DefaultTimeout:  timeout,
		MaxPending:      maxPending,
		CleanupInterval: 50 * time.Millisecond,
	}, nil)
}

func TestResolveDeliversResult(t *testing.T) {
	c := newTestCorrelator(time.Second, 10)
	defer c.Close()

	p, err := c.Register()
	if err != nil {
		t.Fatal(err)
	}

	go c.Resolve(p.RequestID, "done")

	result, err := c.Await(context.Background(), p)
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if result != "done" {
		t.Errorf("result = %v, want done", result)
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending count = %d after resolve, want 0", c.PendingCount())
	}
}

func TestAwaitTimesOut(t *testing.T) {
	c := newTestCorrelator(30*time.Millisecond, 10)
	defer c.Close()

	p, err := c.Register()
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Await(context.Background(), p)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if c.PendingCount() != 0 {
		t.Errorf("abandoned request still pending")
	}

	// A late outcome must be dropped, not panic or resurrect the record.
	c.Resolve(p.RequestID, "late")
	if c.PendingCount() != 0 {
		t.Errorf("late resolve recreated the pending record")
	}
}

func TestRegisterAtCapacity(t *testing.T) {
	c := newTestCorrelator(time.Second, 2)
	defer c.Close()

	if _, err := c.Register(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Register(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Register(); !errors.Is(err, ErrOverloaded) {
		t.Fatalf("err = %v, want ErrOverloaded", err)
	}

	// Resolving one frees a slot.
	p, _ := c.pendingAny()
	c.Resolve(p.RequestID, nil)
	if _, err := c.Register(); err != nil {
		t.Errorf("register after resolve failed: %v", err)
	}
}

// pendingAny picks an arbitrary pending record for test use.
func (c *Correlator) pendingAny() (*Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		return p, true
	}
	return nil, false
}

func TestAwaitContextCancel(t *testing.T) {
	c := newTestCorrelator(time.Second, 10)
	defer c.Close()

	p, err := c.Register()
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Await(ctx, p); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if c.PendingCount() != 0 {
		t.Errorf("cancelled request still pending")
	}
}

func TestResolveRaceWithTimeout(t *testing.T) {
	c := newTestCorrelator(20*time.Millisecond, 10)
	defer c.Close()

	// Hammer concurrent resolve/await pairs; whichever side wins the
	// race, the table must drain and double resolution must be safe.
	for i := 0; i < 50; i++ {
		p, err := c.Register()
		if err != nil {
			t.Fatal(err)
		}
		go func(id string, n int) {
			time.Sleep(time.Duration(n%3) * 10 * time.Millisecond)
			c.Resolve(id, n)
			c.Resolve(id, n)
		}(p.RequestID, i)
		if _, err := c.Await(context.Background(), p); err != nil && !errors.Is(err, ErrTimeout) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending count = %d after drain, want 0", c.PendingCount())
	}
}

func TestJanitorExpiresOrphans(t *testing.T) {
	c := newTestCorrelator(20*time.Millisecond, 10)
	defer c.Close()

	// Register but never Await: the janitor must reclaim the slot.
	if _, err := c.Register(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for c.PendingCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor never reclaimed the orphaned record")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
