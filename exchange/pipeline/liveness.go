package pipeline

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// liveness tracks which pipeline workers are still running. A worker
// that panics is marked down and stays down; the health endpoint
// surfaces it rather than restarting it.
type liveness struct {
	mu     sync.RWMutex
	stages map[string]*atomic.Bool
}

func newLiveness(stageNames ...string) *liveness {
	l := &liveness{stages: make(map[string]*atomic.Bool, len(stageNames))}
	for _, name := range stageNames {
		up := &atomic.Bool{}
		up.Store(true)
		l.stages[name] = up
	}
	return l
}

func (l *liveness) markDown(stage string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if up, ok := l.stages[stage]; ok {
		up.Store(false)
	}
}

// Report returns the up/down state of every stage.
func (l *liveness) Report() map[string]bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]bool, len(l.stages))
	for name, up := range l.stages {
		out[name] = up.Load()
	}
	return out
}

// runStage runs a worker with panic capture. A panic marks the stage
// down; deliberately no restart, the operator should see thread_down on
// the health endpoint.
func (p *Pipeline) runStage(name string, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.liveness.markDown(name)
				p.logger.Error("worker crashed",
					zap.String("stage", name),
					zap.Any("panic", r),
				)
			}
		}()
		fn()
	}()
}
