// Package oncall resolves who is on call for a schedule at any instant.
// The lookup is a pure function of (schedule, instant): no cursor is kept,
// so any number of dispatcher instances can resolve past, present, or
// future instants and always agree.
package oncall

import (
	"context"
	"log/slog"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// MaxLookahead bounds how far past the later of rotation_start and the
// wall clock a lookup may point. Instants beyond it, or before the
// rotation even starts, are rejected rather than resolved ambiguously.
const MaxLookahead = 2 * 365 * 24 * time.Hour

// ScheduleStorage loads schedules by id.
type ScheduleStorage interface {
	GetSchedule(ctx context.Context, scheduleID string) (*model.OnCallSchedule, error)
}

// Resolver performs on-call lookups. It is stateless and safe for
// concurrent use.
type Resolver struct {
	storage ScheduleStorage
}

// NewResolver creates a resolver backed by the given schedule storage.
func NewResolver(storage ScheduleStorage) *Resolver {
	return &Resolver{storage: storage}
}

// Current resolves the on-call member for a stored schedule at the given
// instant.
func (r *Resolver) Current(ctx context.Context, scheduleID string, at time.Time) (string, error) {
	schedule, err := r.storage.GetSchedule(ctx, scheduleID)
	if err != nil {
		return "", err
	}
	return Lookup(schedule, at)
}

// Lookup computes the on-call member for a schedule at an instant.
// Identical inputs always produce identical results.
//
// The rotation index is the number of whole rotation periods elapsed
// since rotation_start, counted in calendar days in the schedule's
// timezone: a handoff stays at the same local time across DST changes
// even though the absolute day length shifts. An override covering the
// instant takes precedence; when overrides overlap, the last-defined one
// wins and the overlap is logged as a warning.
func Lookup(schedule *model.OnCallSchedule, at time.Time) (string, error) {
	if err := guardInstant(schedule, at); err != nil {
		return "", err
	}

	if member, ok := overrideFor(schedule, at); ok {
		return member, nil
	}

	loc, err := schedule.Location()
	if err != nil {
		return "", err
	}
	period, err := schedule.RotationType.PeriodLength(schedule.Interval)
	if err != nil {
		return "", err
	}
	periodDays := int64(period / (24 * time.Hour))

	days := wholeDays(schedule.RotationStart.In(loc), at.In(loc))
	index := int((days / periodDays) % int64(len(schedule.Members)))
	return schedule.Members[index], nil
}

// wholeDays counts full calendar days between start and at, both in the
// schedule's location. AddDate steps calendar days, so a 23 or 25 hour
// DST day still counts as exactly one day and the handoff hour holds.
func wholeDays(start, at time.Time) int64 {
	days := int64(at.Sub(start) / (24 * time.Hour))
	for !start.AddDate(0, 0, int(days+1)).After(at) {
		days++
	}
	for days > 0 && start.AddDate(0, 0, int(days)).After(at) {
		days--
	}
	return days
}

// guardInstant rejects instants far outside the schedule's valid range.
func guardInstant(schedule *model.OnCallSchedule, at time.Time) error {
	if at.Before(schedule.RotationStart) {
		return &model.ClockSkewError{
			ScheduleID: schedule.ScheduleID,
			Instant:    at,
			Reason:     "before rotation start",
		}
	}
	horizon := schedule.RotationStart
	if now := time.Now(); now.After(horizon) {
		horizon = now
	}
	if at.After(horizon.Add(MaxLookahead)) {
		return &model.ClockSkewError{
			ScheduleID: schedule.ScheduleID,
			Instant:    at,
			Reason:     "beyond lookahead horizon",
		}
	}
	return nil
}

// overrideFor returns the overriding member covering the instant, if any.
// Overrides are scanned in definition order; a later match replaces an
// earlier one.
func overrideFor(schedule *model.OnCallSchedule, at time.Time) (string, bool) {
	member := ""
	matches := 0
	for i := range schedule.Overrides {
		if schedule.Overrides[i].Contains(at) {
			if matches > 0 {
				slog.Warn("Overlapping schedule overrides, last-defined wins",
					"schedule_id", schedule.ScheduleID,
					"instant", at,
					"member", schedule.Overrides[i].Member,
				)
			}
			member = schedule.Overrides[i].Member
			matches++
		}
	}
	return member, matches > 0
}
