package grouping

import (
	"context"
	"log/slog"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/pkg/metrics"
)

// CloserStorage is the claim surface for the idle-closer sweep.
type CloserStorage interface {
	ClaimIdleGroups(ctx context.Context, window time.Duration, limit int) ([]string, error)
}

// IdleCloser is the background sweep that closes groups whose window
// elapsed with no further occurrences.
type IdleCloser struct {
	storage   CloserStorage
	window    time.Duration
	interval  time.Duration
	batchSize int
	metrics   metrics.Recorder
}

// NewIdleCloser creates an idle-closer sweep.
func NewIdleCloser(storage CloserStorage, window, interval time.Duration, batchSize int, m metrics.Recorder) *IdleCloser {
	if m == nil {
		m = metrics.NoOp{}
	}
	return &IdleCloser{
		storage:   storage,
		window:    window,
		interval:  interval,
		batchSize: batchSize,
		metrics:   m,
	}
}

// Run executes the sweep on its interval until the context is cancelled.
func (c *IdleCloser) Run(ctx context.Context) {
	slog.Info("Starting group idle closer", "window", c.window, "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Group idle closer stopped")
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep runs one pass of idle closing. Exported so tests and manual
// triggers can drive the closer without the ticker loop.
func (c *IdleCloser) Sweep(ctx context.Context) {
	closed, err := c.storage.ClaimIdleGroups(ctx, c.window, c.batchSize)
	if err != nil {
		slog.Error("Failed to claim idle groups", "error", err)
		c.metrics.RecordError()
		return
	}
	if len(closed) > 0 {
		slog.Info("Closed idle alert groups", "count", len(closed))
		c.metrics.AddCustom(metrics.CounterGroupsClosed, uint64(len(closed)))
	}
}
