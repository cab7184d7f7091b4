package sync

import (
	"context"
	"time"

	"github.com/herdsync/engine/internal/observability"
)

// DefaultInterval is how often the periodic sync pass fires.
const DefaultInterval = 60 * time.Second

// Scheduler drives the periodic sync. It owns nothing but the timer; every
// tick calls straight into the orchestrator, which re-reads the lifecycle
// guards at that moment. Registering the callback once and polling fresh
// state each tick is what keeps a backgrounded app from syncing.
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration
	log          *observability.Logger
	stop         chan struct{}
	done         chan struct{}
}

// NewScheduler creates a scheduler; interval <= 0 falls back to the default.
func NewScheduler(orchestrator *Orchestrator, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		orchestrator: orchestrator,
		interval:     interval,
		log:          observability.GetLogger().WithField("component", "scheduler"),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the timer loop in its own goroutine. The first pass runs
// after one full interval, not immediately; startup work belongs to the
// restore path.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Infof("periodic sync every %s", s.interval)
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.orchestrator.CheckForPending(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the timer and waits for an in-progress tick to return.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}
