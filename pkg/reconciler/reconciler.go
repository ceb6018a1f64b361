package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/converge"
	"github.com/cuemby/burrow/pkg/log"
)

// DefaultInterval is the time between convergence cycles
const DefaultInterval = 5 * time.Minute

// Cycle runs one convergence cycle
type Cycle interface {
	Run(ctx context.Context) (*converge.Report, error)
}

// Reconciler reruns convergence on a fixed interval. Cycles never overlap
// and a failed cycle is simply retried on the next tick.
type Reconciler struct {
	cycle    Cycle
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	last    *converge.Report
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewReconciler creates a new reconciler
func NewReconciler(cycle Cycle, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		cycle:    cycle,
		interval: interval,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop; the first cycle runs immediately
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	go r.run(ctx)
}

// Stop stops the loop and waits for a running cycle to finish
func (r *Reconciler) Stop() {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()

	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	if started {
		<-r.doneCh
	}
}

// Last returns the report of the most recent cycle, or nil
func (r *Reconciler) Last() *converge.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// run is the main reconciliation loop
func (r *Reconciler) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.reconcile(ctx)
	for {
		select {
		case <-ticker.C:
			r.reconcile(ctx)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reconcile performs one convergence cycle
func (r *Reconciler) reconcile(ctx context.Context) {
	report, err := r.cycle.Run(ctx)

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	if err != nil {
		// Log error but continue
		r.logger.Warn().Err(err).Dur("retry_in", r.interval).Msg("Convergence cycle failed")
	}
}
