package sla

import (
	"context"
	"log/slog"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/pkg/metrics"
)

// BreachStorage is the claim surface for the breach sweep. Claims select
// only rows whose flag is still unset, which keeps the breach flags
// monotonic across crashes and concurrent scanner instances.
type BreachStorage interface {
	ClaimTTABreaches(ctx context.Context, limit int) ([]string, error)
	ClaimTTRBreaches(ctx context.Context, limit int) ([]string, error)
}

// Scanner is the background breach sweep. It flags alerts whose elapsed
// time already exceeds target without waiting for an eventual
// acknowledge or resolve call.
type Scanner struct {
	storage   BreachStorage
	interval  time.Duration
	batchSize int
	metrics   metrics.Recorder
}

// NewScanner creates a breach scanner.
func NewScanner(storage BreachStorage, interval time.Duration, batchSize int, m metrics.Recorder) *Scanner {
	if m == nil {
		m = metrics.NoOp{}
	}
	return &Scanner{
		storage:   storage,
		interval:  interval,
		batchSize: batchSize,
		metrics:   m,
	}
}

// Run executes the sweep on its interval until the context is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	slog.Info("Starting SLA breach scanner", "interval", s.interval, "batch_size", s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SLA breach scanner stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass of breach detection. Exported so tests and manual
// triggers can drive the scanner without the ticker loop.
func (s *Scanner) Sweep(ctx context.Context) {
	ttaFlagged, err := s.storage.ClaimTTABreaches(ctx, s.batchSize)
	if err != nil {
		slog.Error("Failed to claim TTA breaches", "error", err)
		s.metrics.RecordError()
	} else {
		for _, alertID := range ttaFlagged {
			slog.Warn("TTA breached", "alert_id", alertID)
		}
		s.metrics.AddCustom(metrics.CounterSLABreachesFlagged, uint64(len(ttaFlagged)))
	}

	ttrFlagged, err := s.storage.ClaimTTRBreaches(ctx, s.batchSize)
	if err != nil {
		slog.Error("Failed to claim TTR breaches", "error", err)
		s.metrics.RecordError()
		return
	}
	for _, alertID := range ttrFlagged {
		slog.Warn("TTR breached", "alert_id", alertID)
	}
	s.metrics.AddCustom(metrics.CounterSLABreachesFlagged, uint64(len(ttrFlagged)))
}
