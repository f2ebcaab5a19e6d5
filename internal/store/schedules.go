package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// InsertSchedule persists an on-call schedule. Members and overrides are
// stored as JSON blobs; callers must have validated the schedule first.
func (db *DB) InsertSchedule(ctx context.Context, schedule *model.OnCallSchedule) error {
	membersJSON, err := json.Marshal(schedule.Members)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule members: %w", err)
	}
	overridesJSON, err := json.Marshal(schedule.Overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule overrides: %w", err)
	}

	query := `
		INSERT INTO oncall_schedules (schedule_id, name, rotation_type, rotation_start, interval_count, members, timezone, overrides, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err = db.conn.ExecContext(ctx, query,
		schedule.ScheduleID, schedule.Name, schedule.RotationType, schedule.RotationStart,
		schedule.Interval, string(membersJSON), schedule.Timezone, string(overridesJSON),
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("schedule already exists: %s", schedule.ScheduleID)
			}
		}
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (db *DB) GetSchedule(ctx context.Context, scheduleID string) (*model.OnCallSchedule, error) {
	query := `
		SELECT schedule_id, name, rotation_type, rotation_start, interval_count, members, timezone, overrides, created_at, updated_at
		FROM oncall_schedules
		WHERE schedule_id = $1
	`
	var s model.OnCallSchedule
	var membersJSON, overridesJSON string
	err := db.conn.QueryRowContext(ctx, query, scheduleID).Scan(
		&s.ScheduleID,
		&s.Name,
		&s.RotationType,
		&s.RotationStart,
		&s.Interval,
		&membersJSON,
		&s.Timezone,
		&overridesJSON,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", model.ErrScheduleNotFound, scheduleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	if err := json.Unmarshal([]byte(membersJSON), &s.Members); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule members: %w", err)
	}
	if err := json.Unmarshal([]byte(overridesJSON), &s.Overrides); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule overrides: %w", err)
	}
	return &s, nil
}
