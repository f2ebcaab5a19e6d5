package model

import (
	"fmt"
	"time"
)

// RotationType determines the unit of one rotation period.
type RotationType string

// Rotation types.
const (
	RotationWeekly RotationType = "weekly"
	RotationDaily  RotationType = "daily"
)

// PeriodLength returns the wall-clock length of one rotation period
// for the given interval (e.g. weekly interval 2 = 2 weeks).
func (r RotationType) PeriodLength(interval int) (time.Duration, error) {
	switch r {
	case RotationWeekly:
		return time.Duration(interval) * 7 * 24 * time.Hour, nil
	case RotationDaily:
		return time.Duration(interval) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown rotation type: %q", r)
	}
}

// Override is a manual exception to the computed rotation, covering
// the half-open interval [Start, End).
type Override struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Member string    `json:"member"`
}

// Contains reports whether t falls inside the override interval.
func (o *Override) Contains(t time.Time) bool {
	return !t.Before(o.Start) && t.Before(o.End)
}

// OnCallSchedule is pure rotation lookup data. No current-member cursor
// is ever stored; who is on call is always computed from the instant.
type OnCallSchedule struct {
	ScheduleID    string
	Name          string
	RotationType  RotationType
	RotationStart time.Time
	Interval      int
	Members       []string   `json:"members"`
	Timezone      string     `json:"timezone"`
	Overrides     []Override `json:"overrides,omitempty"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the schedule against its write-time schema.
// A schedule that fails validation must never reach storage.
func (s *OnCallSchedule) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schedule name cannot be empty")
	}
	if _, err := s.RotationType.PeriodLength(1); err != nil {
		return fmt.Errorf("schedule %s: %w", s.Name, err)
	}
	if s.RotationStart.IsZero() {
		return fmt.Errorf("schedule %s: rotation_start is required", s.Name)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive, got %d", s.Name, s.Interval)
	}
	if len(s.Members) == 0 {
		return fmt.Errorf("schedule %s: members cannot be empty", s.Name)
	}
	for i, m := range s.Members {
		if m == "" {
			return fmt.Errorf("schedule %s: member %d is empty", s.Name, i)
		}
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("schedule %s: invalid timezone %q: %w", s.Name, s.Timezone, err)
	}
	for i, o := range s.Overrides {
		if o.Member == "" {
			return fmt.Errorf("schedule %s: override %d has no member", s.Name, i)
		}
		if !o.End.After(o.Start) {
			return fmt.Errorf("schedule %s: override %d end must be after start", s.Name, i)
		}
	}
	return nil
}

// Location returns the schedule's timezone location.
// Validate must have accepted the schedule first.
func (s *OnCallSchedule) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}
