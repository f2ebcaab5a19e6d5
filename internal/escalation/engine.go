// Package escalation matches policies to alerts, pre-schedules tiered
// notification runs, and dispatches them when due.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// Storage is the persistence surface the engine needs for scheduling.
type Storage interface {
	ListEnabledPolicies(ctx context.Context) ([]*model.EscalationPolicy, error)
	InsertRuns(ctx context.Context, runs []*model.EscalationRun) error
}

// Engine selects policies and schedules escalation runs at alert creation.
type Engine struct {
	storage Storage
}

// NewEngine creates an escalation engine backed by the given storage.
func NewEngine(storage Storage) *Engine {
	return &Engine{storage: storage}
}

// SelectPolicy picks the single policy applied to an alert: the enabled
// policy with the highest priority whose severity_match contains the
// alert's severity. Ties break deterministically on policy id.
// Returns ErrNoMatchingPolicy when nothing matches.
func SelectPolicy(policies []*model.EscalationPolicy, severity model.Severity) (*model.EscalationPolicy, error) {
	var selected *model.EscalationPolicy
	for _, policy := range policies {
		if !policy.Enabled || !policy.Matches(severity) {
			continue
		}
		if selected == nil ||
			policy.Priority > selected.Priority ||
			(policy.Priority == selected.Priority && policy.PolicyID < selected.PolicyID) {
			selected = policy
		}
	}
	if selected == nil {
		return nil, model.ErrNoMatchingPolicy
	}
	return selected, nil
}

// Schedule inserts one pending run per tier of the alert's selected
// policy, each due at created_at + tier delay. Scheduling is idempotent:
// the unique (alert_id, policy_id, tier_index) key turns re-runs into
// no-ops, which makes the whole step crash-safe.
//
// A missing policy match is not an error for the caller: the alert stays
// tracked without escalation.
func (e *Engine) Schedule(ctx context.Context, alert *model.Alert) error {
	policies, err := e.storage.ListEnabledPolicies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list policies: %w", err)
	}

	policy, err := SelectPolicy(policies, alert.Severity)
	if err != nil {
		if errors.Is(err, model.ErrNoMatchingPolicy) {
			slog.Info("No escalation policy matches alert, tracking without escalation",
				"alert_id", alert.AlertID,
				"severity", alert.Severity,
			)
			return nil
		}
		return err
	}

	runs := make([]*model.EscalationRun, len(policy.Tiers))
	for i, tier := range policy.Tiers {
		runs[i] = &model.EscalationRun{
			RunID:       uuid.NewString(),
			AlertID:     alert.AlertID,
			PolicyID:    policy.PolicyID,
			TierIndex:   i,
			Status:      model.RunPending,
			ScheduledAt: alert.CreatedAt.Add(tier.Delay),
		}
	}
	if err := e.storage.InsertRuns(ctx, runs); err != nil {
		return fmt.Errorf("failed to schedule escalation runs: %w", err)
	}

	slog.Info("Escalation scheduled",
		"alert_id", alert.AlertID,
		"policy_id", policy.PolicyID,
		"tiers", len(policy.Tiers),
	)
	return nil
}
