package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// ErrDuplicateActiveGroup is returned when a concurrent writer created an
// active group for the same key first. The caller should retry the append
// path against the freshly created group.
var ErrDuplicateActiveGroup = errors.New("active group already exists for key")

// AppendOccurrence appends one occurrence to the active group for the
// given key, provided its last occurrence is still inside the window.
// Returns the group's alert id and true when a group was appended, or
// false when no eligible group exists and a new one must be created.
func (db *DB) AppendOccurrence(ctx context.Context, groupKey string, at time.Time, window time.Duration) (string, bool, error) {
	query := `
		UPDATE alert_groups
		SET occurrence_count = occurrence_count + 1,
		    last_occurrence_at = $2,
		    updated_at = $2
		WHERE group_key = $1
		  AND status = 'active'
		  AND last_occurrence_at >= $2::timestamptz - make_interval(secs => $3)
		RETURNING alert_id
	`
	var alertID string
	err := db.conn.QueryRowContext(ctx, query, groupKey, at, window.Seconds()).Scan(&alertID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to append occurrence: %w", err)
	}
	return alertID, true, nil
}

// CreateGroupedAlert creates a new alert, its initial state record, its
// SLA row, and the alert group that owns it, all in one transaction.
// A unique index on (group_key) for active groups turns a creation race
// into ErrDuplicateActiveGroup so the loser can retry the append path.
func (db *DB) CreateGroupedAlert(ctx context.Context, alert *model.Alert, group *model.AlertGroup, targetTTA, targetTTR time.Duration) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		groupInsert := `
			INSERT INTO alert_groups (group_id, group_key, alert_id, first_occurrence_at, last_occurrence_at, occurrence_count, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4, 1, 'active', $4, $4)
		`
		if _, err := tx.ExecContext(ctx, groupInsert,
			group.GroupID, group.GroupKey, alert.AlertID, group.FirstOccurrenceAt,
		); err != nil {
			return fmt.Errorf("failed to insert alert group: %w", err)
		}

		alertInsert := `
			INSERT INTO alerts (alert_id, source_id, check_name, severity, message, value, threshold, current_state, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'new', $8, $8)
		`
		if _, err := tx.ExecContext(ctx, alertInsert,
			alert.AlertID, alert.SourceID, alert.CheckName, alert.Severity,
			alert.Message, alert.Value, alert.Threshold, alert.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}

		if err := insertStateRecord(ctx, tx, alert.AlertID, model.StateNew, "system", "alert created", nil, alert.CreatedAt); err != nil {
			return err
		}

		slaInsert := `
			INSERT INTO alert_slas (alert_id, severity, target_tta_seconds, target_ttr_seconds, tta_breached, ttr_breached, created_at, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, FALSE, $5, $5)
			ON CONFLICT (alert_id) DO NOTHING
		`
		if _, err := tx.ExecContext(ctx, slaInsert,
			alert.AlertID, alert.Severity, int64(targetTTA.Seconds()), int64(targetTTR.Seconds()), alert.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert alert SLA: %w", err)
		}

		return nil
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return fmt.Errorf("%w: %s", ErrDuplicateActiveGroup, group.GroupKey)
		}
		return err
	}
	return nil
}

// CloseExpiredGroup closes the active group for the given key when its
// last occurrence already fell out of the window. A group refreshed by a
// concurrent append stays open; closing nothing is not an error.
func (db *DB) CloseExpiredGroup(ctx context.Context, groupKey string, at time.Time, window time.Duration) error {
	query := `
		UPDATE alert_groups
		SET status = 'closed',
		    updated_at = $2
		WHERE group_key = $1
		  AND status = 'active'
		  AND last_occurrence_at < $2::timestamptz - make_interval(secs => $3)
	`
	if _, err := db.conn.ExecContext(ctx, query, groupKey, at, window.Seconds()); err != nil {
		return fmt.Errorf("failed to close expired group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (db *DB) GetGroup(ctx context.Context, groupID string) (*model.AlertGroup, error) {
	query := `
		SELECT group_id, group_key, alert_id, first_occurrence_at, last_occurrence_at, occurrence_count, status, created_at, updated_at
		FROM alert_groups
		WHERE group_id = $1
	`
	var g model.AlertGroup
	err := db.conn.QueryRowContext(ctx, query, groupID).Scan(
		&g.GroupID,
		&g.GroupKey,
		&g.AlertID,
		&g.FirstOccurrenceAt,
		&g.LastOccurrenceAt,
		&g.OccurrenceCount,
		&g.Status,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group not found: %s", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// ClaimIdleGroups marks active groups closed once their last occurrence
// fell out of the window. SKIP LOCKED lets multiple idle-closer instances
// run concurrently without double-processing.
func (db *DB) ClaimIdleGroups(ctx context.Context, window time.Duration, limit int) ([]string, error) {
	query := `
		UPDATE alert_groups
		SET status = 'closed',
		    updated_at = NOW()
		WHERE group_id IN (
			SELECT group_id
			FROM alert_groups
			WHERE status = 'active'
			  AND last_occurrence_at < NOW() - make_interval(secs => $1)
			ORDER BY last_occurrence_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING group_id
	`
	rows, err := db.conn.QueryContext(ctx, query, window.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim idle groups: %w", err)
	}
	defer rows.Close()

	var groupIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		groupIDs = append(groupIDs, id)
	}
	return groupIDs, rows.Err()
}

// CloseGroupForAlert closes the group owning the given alert immediately.
// Used when the underlying alert resolves.
func (db *DB) CloseGroupForAlert(ctx context.Context, alertID string) error {
	query := `
		UPDATE alert_groups
		SET status = 'closed',
		    updated_at = NOW()
		WHERE alert_id = $1 AND status = 'active'
	`
	if _, err := db.conn.ExecContext(ctx, query, alertID); err != nil {
		return fmt.Errorf("failed to close group for alert: %w", err)
	}
	return nil
}

// GroupStats aggregates noise-reduction statistics for groups created
// since the given time (zero time = all groups).
func (db *DB) GroupStats(ctx context.Context, since time.Time) (*model.GroupStats, error) {
	query := `
		SELECT COALESCE(SUM(occurrence_count), 0),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'active')
		FROM alert_groups
		WHERE created_at >= $1
	`
	var stats model.GroupStats
	err := db.conn.QueryRowContext(ctx, query, since).Scan(
		&stats.TotalOccurrences,
		&stats.GroupsCreated,
		&stats.ActiveGroups,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get group stats: %w", err)
	}
	if stats.TotalOccurrences > 0 {
		stats.NoiseReduction = 1 - float64(stats.GroupsCreated)/float64(stats.TotalOccurrences)
	}
	return &stats, nil
}
