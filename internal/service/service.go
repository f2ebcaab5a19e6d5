// Package service exposes the alert lifecycle core to the external API
// layer: occurrence ingestion, lifecycle operations, SLA reads, policy and
// schedule registration, on-call lookup, and group statistics.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/grouping"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/lifecycle"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/oncall"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/sla"
)

// Storage is the persistence surface the facade needs beyond what its
// components already own.
type Storage interface {
	CloseGroupForAlert(ctx context.Context, alertID string) error
	InsertPolicy(ctx context.Context, policy *model.EscalationPolicy) error
	InsertSchedule(ctx context.Context, schedule *model.OnCallSchedule) error
	GetAlert(ctx context.Context, alertID string) (*model.Alert, error)
	ListRunsForAlert(ctx context.Context, alertID string) ([]*model.EscalationRun, error)
	ListEnabledPolicies(ctx context.Context) ([]*model.EscalationPolicy, error)
}

// Service wires the core components behind a single API surface.
type Service struct {
	storage  Storage
	groups   *grouping.Engine
	states   *lifecycle.StateMachine
	tracker  *sla.Tracker
	resolver *oncall.Resolver
}

// New creates the service facade.
func New(storage Storage, groups *grouping.Engine, states *lifecycle.StateMachine, tracker *sla.Tracker, resolver *oncall.Resolver) *Service {
	return &Service{
		storage:  storage,
		groups:   groups,
		states:   states,
		tracker:  tracker,
		resolver: resolver,
	}
}

// CreateAlert ingests one raw occurrence through the grouping engine.
// Occurrences appended to an open group create nothing new; a fresh group
// creates the alert, its SLA row, and its escalation schedule.
func (s *Service) CreateAlert(ctx context.Context, occ *model.Occurrence) (*grouping.Result, error) {
	return s.groups.Ingest(ctx, occ)
}

// Acknowledge moves an alert to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, alertID, actor, notes string) error {
	return s.states.Acknowledge(ctx, alertID, actor, notes)
}

// Investigate moves an alert to investigating.
func (s *Service) Investigate(ctx context.Context, alertID, actor string) error {
	return s.states.Investigate(ctx, alertID, actor)
}

// Resolve moves an alert to resolved and closes its group immediately.
func (s *Service) Resolve(ctx context.Context, alertID, actor, notes string) error {
	if err := s.states.Resolve(ctx, alertID, actor, notes); err != nil {
		return err
	}
	if err := s.storage.CloseGroupForAlert(ctx, alertID); err != nil {
		// The idle closer will pick the group up; the resolve itself stands.
		slog.Error("Failed to close group for resolved alert", "alert_id", alertID, "error", err)
	}
	return nil
}

// Reopen moves a resolved alert back to new.
func (s *Service) Reopen(ctx context.Context, alertID, actor string) error {
	return s.states.Reopen(ctx, alertID, actor)
}

// Unacknowledge moves an acknowledged alert back to new.
func (s *Service) Unacknowledge(ctx context.Context, alertID, actor string) error {
	return s.states.Unacknowledge(ctx, alertID, actor)
}

// GetAlert retrieves an alert.
func (s *Service) GetAlert(ctx context.Context, alertID string) (*model.Alert, error) {
	return s.storage.GetAlert(ctx, alertID)
}

// GetCurrentState returns the current lifecycle state of an alert.
func (s *Service) GetCurrentState(ctx context.Context, alertID string) (model.State, error) {
	return s.states.CurrentState(ctx, alertID)
}

// GetStateHistory returns the alert's append-only state trail.
func (s *Service) GetStateHistory(ctx context.Context, alertID string) ([]*model.StateRecord, error) {
	return s.states.History(ctx, alertID)
}

// GetSLAStatus returns the SLA row for an alert.
func (s *Service) GetSLAStatus(ctx context.Context, alertID string) (*model.AlertSLA, error) {
	return s.tracker.Status(ctx, alertID)
}

// GetEscalationRuns returns all escalation runs for an alert.
func (s *Service) GetEscalationRuns(ctx context.Context, alertID string) ([]*model.EscalationRun, error) {
	return s.storage.ListRunsForAlert(ctx, alertID)
}

// RegisterPolicy validates and persists an escalation policy. Malformed
// policies are rejected before they can affect escalation behavior.
func (s *Service) RegisterPolicy(ctx context.Context, policy *model.EscalationPolicy) error {
	if policy.PolicyID == "" {
		policy.PolicyID = uuid.NewString()
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("policy rejected: %w", err)
	}
	if err := s.storage.InsertPolicy(ctx, policy); err != nil {
		return err
	}
	slog.Info("Escalation policy registered",
		"policy_id", policy.PolicyID,
		"name", policy.Name,
		"priority", policy.Priority,
		"tiers", len(policy.Tiers),
	)
	return nil
}

// RegisterSchedule validates and persists an on-call schedule. Malformed
// schedules are rejected before they can affect escalation behavior.
func (s *Service) RegisterSchedule(ctx context.Context, schedule *model.OnCallSchedule) error {
	if schedule.ScheduleID == "" {
		schedule.ScheduleID = uuid.NewString()
	}
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("schedule rejected: %w", err)
	}
	if err := s.storage.InsertSchedule(ctx, schedule); err != nil {
		return err
	}
	slog.Info("On-call schedule registered",
		"schedule_id", schedule.ScheduleID,
		"name", schedule.Name,
		"rotation_type", schedule.RotationType,
		"members", len(schedule.Members),
	)
	return nil
}

// ListPolicies returns the enabled escalation policies.
func (s *Service) ListPolicies(ctx context.Context) ([]*model.EscalationPolicy, error) {
	return s.storage.ListEnabledPolicies(ctx)
}

// CurrentOnCall resolves the on-call member for a schedule at an instant.
// A zero instant means now.
func (s *Service) CurrentOnCall(ctx context.Context, scheduleID string, at time.Time) (string, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.resolver.Current(ctx, scheduleID, at)
}

// GroupStats returns the noise-reduction statistic for groups created
// since the given time (zero time = all groups).
func (s *Service) GroupStats(ctx context.Context, since time.Time) (*model.GroupStats, error) {
	return s.groups.Stats(ctx, since)
}

// ComplianceReport aggregates SLA compliance by severity over a period.
func (s *Service) ComplianceReport(ctx context.Context, severity *model.Severity, from, to time.Time) ([]*model.ComplianceRow, error) {
	return s.tracker.ComplianceReport(ctx, severity, from, to)
}
