// Package grouping deduplicates raw occurrences into time-windowed alert
// groups. Appending to an open group is the noise-reduction path: no new
// alert, SLA row, or escalation is created for the appended occurrence.
package grouping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/sla"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/store"
	"github.com/WilBtc/InsaAutomationCorp-sub010/pkg/metrics"
)

// DefaultWindow is the default grouping window.
const DefaultWindow = 5 * time.Minute

// KeyFunc derives the dedup key for an occurrence.
type KeyFunc func(occ *model.Occurrence) string

// DefaultKey groups occurrences by source, check, and severity.
func DefaultKey(occ *model.Occurrence) string {
	return fmt.Sprintf("%s|%s|%s", occ.SourceID, occ.CheckName, occ.Severity)
}

// Storage is the persistence surface the grouping engine needs.
type Storage interface {
	AppendOccurrence(ctx context.Context, groupKey string, at time.Time, window time.Duration) (string, bool, error)
	CreateGroupedAlert(ctx context.Context, alert *model.Alert, group *model.AlertGroup, targetTTA, targetTTR time.Duration) error
	CloseExpiredGroup(ctx context.Context, groupKey string, at time.Time, window time.Duration) error
	GroupStats(ctx context.Context, since time.Time) (*model.GroupStats, error)
}

// Escalator schedules escalation for newly created alerts.
type Escalator interface {
	Schedule(ctx context.Context, alert *model.Alert) error
}

// Result reports what ingesting one occurrence did.
type Result struct {
	AlertID  string
	GroupID  string
	Appended bool
}

// Engine turns raw occurrences into grouped alerts.
type Engine struct {
	storage   Storage
	escalator Escalator
	keyFunc   KeyFunc
	window    time.Duration
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewEngine creates a grouping engine with the default key function and
// window.
func NewEngine(storage Storage, escalator Escalator, m metrics.Recorder) *Engine {
	if m == nil {
		m = metrics.NoOp{}
	}
	return &Engine{
		storage:   storage,
		escalator: escalator,
		keyFunc:   DefaultKey,
		window:    DefaultWindow,
		metrics:   m,
		now:       time.Now,
	}
}

// SetKeyFunc overrides the dedup key derivation.
func (e *Engine) SetKeyFunc(fn KeyFunc) {
	e.keyFunc = fn
}

// SetWindow overrides the grouping window.
func (e *Engine) SetWindow(window time.Duration) {
	e.window = window
}

// SetClock overrides the time source. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Ingest processes one raw occurrence: append it to the open group for
// its key, or create a new group with its alert and SLA row and schedule
// escalation. An occurrence lands in exactly one group and is never
// reassigned.
func (e *Engine) Ingest(ctx context.Context, occ *model.Occurrence) (*Result, error) {
	if !occ.Severity.Valid() {
		return nil, fmt.Errorf("unknown severity: %q", occ.Severity)
	}

	key := e.keyFunc(occ)
	at := e.now().UTC()

	alertID, appended, err := e.storage.AppendOccurrence(ctx, key, at, e.window)
	if err != nil {
		return nil, err
	}
	if appended {
		e.metrics.IncrementCustom(metrics.CounterOccurrencesDeduplicated)
		slog.Debug("Occurrence appended to open group",
			"group_key", key,
			"alert_id", alertID,
		)
		return &Result{AlertID: alertID, Appended: true}, nil
	}

	result, err := e.createGroup(ctx, occ, key, at)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, store.ErrDuplicateActiveGroup) {
		return nil, err
	}

	// A concurrent writer may have created the group between our append
	// attempt and the insert; fall back to the append path.
	alertID, appended, err = e.storage.AppendOccurrence(ctx, key, at, e.window)
	if err != nil {
		return nil, err
	}
	if appended {
		e.metrics.IncrementCustom(metrics.CounterOccurrencesDeduplicated)
		return &Result{AlertID: alertID, Appended: true}, nil
	}

	// The active group blocking the insert is past its window but the
	// idle closer has not swept it yet. Close it inline and recreate.
	if err := e.storage.CloseExpiredGroup(ctx, key, at, e.window); err != nil {
		return nil, err
	}
	return e.createGroup(ctx, occ, key, at)
}

func (e *Engine) createGroup(ctx context.Context, occ *model.Occurrence, key string, at time.Time) (*Result, error) {
	target, err := sla.TargetFor(occ.Severity)
	if err != nil {
		return nil, err
	}

	alert := &model.Alert{
		AlertID:      uuid.NewString(),
		SourceID:     occ.SourceID,
		CheckName:    occ.CheckName,
		Severity:     occ.Severity,
		Message:      occ.Message,
		Value:        occ.Value,
		Threshold:    occ.Threshold,
		CurrentState: model.StateNew,
		CreatedAt:    at,
	}
	group := &model.AlertGroup{
		GroupID:           uuid.NewString(),
		GroupKey:          key,
		AlertID:           alert.AlertID,
		FirstOccurrenceAt: at,
		LastOccurrenceAt:  at,
		OccurrenceCount:   1,
		Status:            model.GroupActive,
	}

	if err := e.storage.CreateGroupedAlert(ctx, alert, group, target.TTA, target.TTR); err != nil {
		return nil, err
	}
	e.metrics.IncrementCustom(metrics.CounterGroupsCreated)

	slog.Info("Alert created from new group",
		"alert_id", alert.AlertID,
		"group_id", group.GroupID,
		"group_key", key,
		"severity", alert.Severity,
	)

	if err := e.escalator.Schedule(ctx, alert); err != nil {
		// The alert and SLA are already tracked; scheduling retries on
		// the next ingest would violate tier delays, so surface the error.
		return nil, fmt.Errorf("alert %s created but escalation scheduling failed: %w", alert.AlertID, err)
	}

	return &Result{AlertID: alert.AlertID, GroupID: group.GroupID, Appended: false}, nil
}

// Stats returns the read-side noise reduction statistic for groups
// created since the given time (zero time = all groups).
func (e *Engine) Stats(ctx context.Context, since time.Time) (*model.GroupStats, error) {
	return e.storage.GroupStats(ctx, since)
}
