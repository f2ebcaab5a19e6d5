// Package sla computes and tracks Time-To-Acknowledge and Time-To-Resolve
// targets, flags breaches, and serves compliance reporting.
package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// Target holds the acknowledge and resolve deadlines for one severity.
type Target struct {
	TTA time.Duration
	TTR time.Duration
}

// targets maps each severity to its SLA deadlines.
var targets = map[model.Severity]Target{
	model.SeverityCritical: {TTA: 5 * time.Minute, TTR: 30 * time.Minute},
	model.SeverityHigh:     {TTA: 15 * time.Minute, TTR: 2 * time.Hour},
	model.SeverityMedium:   {TTA: 1 * time.Hour, TTR: 8 * time.Hour},
	model.SeverityLow:      {TTA: 4 * time.Hour, TTR: 24 * time.Hour},
	model.SeverityInfo:     {TTA: 24 * time.Hour, TTR: 7 * 24 * time.Hour},
}

// TargetFor returns the SLA target for a severity.
func TargetFor(severity model.Severity) (Target, error) {
	t, ok := targets[severity]
	if !ok {
		return Target{}, fmt.Errorf("no SLA target for severity: %q", severity)
	}
	return t, nil
}

// Storage is the persistence surface the tracker needs. The ack/resolve
// timestamps themselves are stamped by the store inside the state
// transition transaction; the tracker owns targets and reads.
type Storage interface {
	GetSLA(ctx context.Context, alertID string) (*model.AlertSLA, error)
	ComplianceReport(ctx context.Context, severity *model.Severity, from, to time.Time) ([]*model.ComplianceRow, error)
}

// Tracker serves SLA reads and reporting.
type Tracker struct {
	storage Storage
}

// NewTracker creates an SLA tracker backed by the given storage.
func NewTracker(storage Storage) *Tracker {
	return &Tracker{storage: storage}
}

// Status returns the SLA row for an alert.
func (t *Tracker) Status(ctx context.Context, alertID string) (*model.AlertSLA, error) {
	return t.storage.GetSLA(ctx, alertID)
}

// ComplianceReport aggregates breach counts and compliance percentages by
// severity over [from, to). A nil severity covers all severities.
func (t *Tracker) ComplianceReport(ctx context.Context, severity *model.Severity, from, to time.Time) ([]*model.ComplianceRow, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("invalid reporting period: %s is not after %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return t.storage.ComplianceReport(ctx, severity, from, to)
}
