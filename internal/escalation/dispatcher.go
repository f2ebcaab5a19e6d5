package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/escalation/retry"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
	"github.com/WilBtc/InsaAutomationCorp-sub010/pkg/metrics"
)

// DispatchStorage is the persistence surface the dispatcher needs.
type DispatchStorage interface {
	ClaimDueRuns(ctx context.Context, limit int) ([]*model.EscalationRun, error)
	GetAlert(ctx context.Context, alertID string) (*model.Alert, error)
	GetPolicy(ctx context.Context, policyID string) (*model.EscalationPolicy, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, lastError string) error
}

// OnCallResolver resolves schedule references to current members.
type OnCallResolver interface {
	Current(ctx context.Context, scheduleID string, at time.Time) (string, error)
}

// Dispatcher is the background escalation sweep. It claims due runs,
// re-checks alert state immediately before sending (the final guard), and
// invokes the notifier per configured channel. Dispatch is at-least-once;
// the run bookkeeping makes duplicates idempotent.
type Dispatcher struct {
	storage   DispatchStorage
	notifier  Notifier
	oncall    OnCallResolver
	retryCfg  retry.Config
	interval  time.Duration
	batchSize int
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewDispatcher creates an escalation dispatcher.
func NewDispatcher(storage DispatchStorage, notifier Notifier, oncall OnCallResolver, interval time.Duration, batchSize int, m metrics.Recorder) *Dispatcher {
	if m == nil {
		m = metrics.NoOp{}
	}
	return &Dispatcher{
		storage:   storage,
		notifier:  notifier,
		oncall:    oncall,
		retryCfg:  retry.DefaultConfig(),
		interval:  interval,
		batchSize: batchSize,
		metrics:   m,
		now:       time.Now,
	}
}

// SetRetryConfig overrides the delivery retry configuration.
func (d *Dispatcher) SetRetryConfig(cfg retry.Config) {
	d.retryCfg = cfg
}

// SetClock overrides the time source. Intended for tests.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Run executes the sweep on its interval until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Starting escalation dispatcher", "interval", d.interval, "batch_size", d.batchSize)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Escalation dispatcher stopped")
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep claims and dispatches one batch of due runs. Exported so tests
// and manual triggers can drive the dispatcher without the ticker loop.
func (d *Dispatcher) Sweep(ctx context.Context) {
	runs, err := d.storage.ClaimDueRuns(ctx, d.batchSize)
	if err != nil {
		slog.Error("Failed to claim due escalation runs", "error", err)
		d.metrics.RecordError()
		return
	}

	for _, run := range runs {
		d.dispatch(ctx, run)
	}
}

// dispatch executes one claimed run end to end. Failures never block
// other runs: each tier is evaluated independently on its own schedule.
func (d *Dispatcher) dispatch(ctx context.Context, run *model.EscalationRun) {
	startTime := d.now()

	alert, err := d.storage.GetAlert(ctx, run.AlertID)
	if err != nil {
		slog.Error("Failed to load alert for escalation run",
			"run_id", run.RunID, "alert_id", run.AlertID, "error", err)
		d.finish(ctx, run, model.RunFailed, fmt.Sprintf("load alert: %v", err))
		return
	}

	policy, err := d.storage.GetPolicy(ctx, run.PolicyID)
	if err != nil {
		slog.Error("Failed to load policy for escalation run",
			"run_id", run.RunID, "policy_id", run.PolicyID, "error", err)
		d.finish(ctx, run, model.RunFailed, fmt.Sprintf("load policy: %v", err))
		return
	}
	if run.TierIndex >= len(policy.Tiers) {
		d.finish(ctx, run, model.RunFailed, fmt.Sprintf("tier index %d out of range", run.TierIndex))
		return
	}
	tier := policy.Tiers[run.TierIndex]

	// Final guard: re-read alert state immediately before any network
	// call. An alert acknowledged while this run sat in the queue must
	// not be notified on.
	if alert.CurrentState.Terminal() && !tier.Mandatory {
		slog.Info("Escalation cancelled, alert already handled",
			"run_id", run.RunID,
			"alert_id", run.AlertID,
			"tier", run.TierIndex,
			"state", alert.CurrentState,
		)
		d.metrics.IncrementCustom(metrics.CounterEscalationsCancelled)
		d.finish(ctx, run, model.RunCancelled, "")
		return
	}

	recipients, err := d.resolveRecipients(ctx, tier)
	if err != nil {
		slog.Error("Failed to resolve escalation recipients",
			"run_id", run.RunID, "schedule_ref", tier.ScheduleRef, "error", err)
		d.finish(ctx, run, model.RunFailed, fmt.Sprintf("resolve recipients: %v", err))
		return
	}

	if errs := d.send(ctx, alert, tier, recipients, run.TierIndex); len(errs) > 0 {
		d.metrics.IncrementCustom(metrics.CounterEscalationsFailed)
		d.finish(ctx, run, model.RunFailed, strings.Join(errs, "; "))
		return
	}

	d.metrics.IncrementCustom(metrics.CounterEscalationsDispatched)
	d.metrics.RecordProcessed(d.now().Sub(startTime))
	d.finish(ctx, run, model.RunCompleted, "")

	slog.Info("Escalation tier dispatched",
		"run_id", run.RunID,
		"alert_id", run.AlertID,
		"policy_id", run.PolicyID,
		"tier", run.TierIndex,
		"channels", tier.Channels,
		"recipients", len(recipients),
	)
}

// resolveRecipients returns the tier's direct recipients, or resolves the
// on-call member of its schedule reference at dispatch time.
func (d *Dispatcher) resolveRecipients(ctx context.Context, tier model.Tier) ([]string, error) {
	if len(tier.Recipients) > 0 {
		return tier.Recipients, nil
	}
	if tier.ScheduleRef == "" {
		return nil, fmt.Errorf("tier has neither recipients nor schedule_ref")
	}
	member, err := d.oncall.Current(ctx, tier.ScheduleRef, d.now())
	if err != nil {
		return nil, err
	}
	return []string{member}, nil
}

// send delivers on every configured channel, each under bounded retry.
// Returns the per-channel failures after retry exhaustion.
func (d *Dispatcher) send(ctx context.Context, alert *model.Alert, tier model.Tier, recipients []string, tierIndex int) []string {
	var failures []string
	for _, channel := range tier.Channels {
		operation := fmt.Sprintf("notify %s tier %d", channel, tierIndex)
		err := retry.WithRetry(ctx, d.retryCfg, operation, func() error {
			return d.notifier.Send(ctx, channel, recipients, alert, tierIndex)
		})
		if err != nil {
			slog.Error("Notification delivery failed after retries",
				"alert_id", alert.AlertID,
				"channel", channel,
				"tier", tierIndex,
				"error", err,
			)
			failures = append(failures, fmt.Sprintf("%s: %v", channel, err))
		}
	}
	return failures
}

// finish writes the run's terminal status; status is written only after
// the notifier call has returned.
func (d *Dispatcher) finish(ctx context.Context, run *model.EscalationRun, status model.RunStatus, lastError string) {
	if err := d.storage.FinishRun(ctx, run.RunID, status, lastError); err != nil {
		slog.Error("Failed to record escalation run status",
			"run_id", run.RunID, "status", status, "error", err)
		d.metrics.RecordError()
	}
}
