package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

const alertColumns = `alert_id, source_id, check_name, severity, message, value, threshold, current_state, created_at, updated_at`

func scanAlert(row interface{ Scan(...any) error }) (*model.Alert, error) {
	var a model.Alert
	err := row.Scan(
		&a.AlertID,
		&a.SourceID,
		&a.CheckName,
		&a.Severity,
		&a.Message,
		&a.Value,
		&a.Threshold,
		&a.CurrentState,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAlert retrieves an alert by ID.
func (db *DB) GetAlert(ctx context.Context, alertID string) (*model.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE alert_id = $1
	`
	a, err := scanAlert(db.conn.QueryRowContext(ctx, query, alertID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", model.ErrAlertNotFound, alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// GetAlertState retrieves only the current state of an alert. The state
// machine reads it before every transition instead of loading the full row.
func (db *DB) GetAlertState(ctx context.Context, alertID string) (model.State, error) {
	query := `SELECT current_state FROM alerts WHERE alert_id = $1`
	var state model.State
	err := db.conn.QueryRowContext(ctx, query, alertID).Scan(&state)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", model.ErrAlertNotFound, alertID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get alert state: %w", err)
	}
	return state, nil
}

// GetStateHistory retrieves the append-only state trail of an alert,
// oldest first.
func (db *DB) GetStateHistory(ctx context.Context, alertID string) ([]*model.StateRecord, error) {
	query := `
		SELECT record_id, alert_id, state, actor, notes, metadata, created_at
		FROM alert_state_records
		WHERE alert_id = $1
		ORDER BY created_at ASC, record_id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get state history: %w", err)
	}
	defer rows.Close()

	var records []*model.StateRecord
	for rows.Next() {
		var rec model.StateRecord
		var metadataJSON sql.NullString
		if err := rows.Scan(
			&rec.RecordID,
			&rec.AlertID,
			&rec.State,
			&rec.Actor,
			&rec.Notes,
			&metadataJSON,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan state record: %w", err)
		}
		rec.Metadata = unmarshalMetadata(metadataJSON, "alert_id", alertID)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func unmarshalMetadata(metadataJSON sql.NullString, warnAttrs ...any) map[string]string {
	if !metadataJSON.Valid || metadataJSON.String == "" {
		return make(map[string]string)
	}

	var m map[string]string
	if err := json.Unmarshal([]byte(metadataJSON.String), &m); err != nil {
		slog.Warn("Failed to unmarshal metadata JSON", append([]any{"error", err}, warnAttrs...)...)
		return make(map[string]string)
	}
	if m == nil {
		return make(map[string]string)
	}
	return m
}

// TransitionAlert moves an alert from one state to another and appends the
// matching state record, all in one transaction. The update is conditioned
// on the alert still being in the expected prior state; on mismatch a
// ConcurrentModificationError is returned and nothing is written.
//
// Transitions into acknowledged/resolved also stamp the SLA row in the
// same transaction: the elapsed time is recorded once and the breach flag
// only ever moves false to true.
func (db *DB) TransitionAlert(ctx context.Context, alertID string, from, to model.State, actor, notes string, metadata map[string]string, at time.Time) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		update := `
			UPDATE alerts
			SET current_state = $3,
			    updated_at = $4
			WHERE alert_id = $1 AND current_state = $2
		`
		result, err := tx.ExecContext(ctx, update, alertID, from, to, at)
		if err != nil {
			return fmt.Errorf("failed to update alert state: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			var exists bool
			checkQuery := `SELECT EXISTS(SELECT 1 FROM alerts WHERE alert_id = $1)`
			if err := tx.QueryRowContext(ctx, checkQuery, alertID).Scan(&exists); err == nil && exists {
				return &model.ConcurrentModificationError{AlertID: alertID, Expected: from}
			}
			return fmt.Errorf("%w: %s", model.ErrAlertNotFound, alertID)
		}

		if err := insertStateRecord(ctx, tx, alertID, to, actor, notes, metadata, at); err != nil {
			return err
		}

		switch to {
		case model.StateAcknowledged:
			return stampSLAAcknowledged(ctx, tx, alertID, at)
		case model.StateResolved:
			return stampSLAResolved(ctx, tx, alertID, at)
		}
		return nil
	})
}

func insertStateRecord(ctx context.Context, tx *sql.Tx, alertID string, state model.State, actor, notes string, metadata map[string]string, at time.Time) error {
	var metadataJSON any
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal state record metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	query := `
		INSERT INTO alert_state_records (alert_id, state, actor, notes, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, query, alertID, state, actor, notes, metadataJSON, at); err != nil {
		return fmt.Errorf("failed to insert state record: %w", err)
	}
	return nil
}

// stampSLAAcknowledged records the time to acknowledge exactly once.
// The breach flag is monotonic: once true it is never recomputed or cleared.
func stampSLAAcknowledged(ctx context.Context, tx *sql.Tx, alertID string, at time.Time) error {
	query := `
		UPDATE alert_slas
		SET acknowledged_at = $2,
		    tta_seconds = EXTRACT(EPOCH FROM ($2::timestamptz - created_at))::bigint,
		    tta_breached = tta_breached OR ($2::timestamptz - created_at > make_interval(secs => target_tta_seconds)),
		    updated_at = $2
		WHERE alert_id = $1 AND acknowledged_at IS NULL
	`
	if _, err := tx.ExecContext(ctx, query, alertID, at); err != nil {
		return fmt.Errorf("failed to stamp SLA acknowledge: %w", err)
	}
	return nil
}

// stampSLAResolved records the time to resolve exactly once, analogous to
// stampSLAAcknowledged.
func stampSLAResolved(ctx context.Context, tx *sql.Tx, alertID string, at time.Time) error {
	query := `
		UPDATE alert_slas
		SET resolved_at = $2,
		    ttr_seconds = EXTRACT(EPOCH FROM ($2::timestamptz - created_at))::bigint,
		    ttr_breached = ttr_breached OR ($2::timestamptz - created_at > make_interval(secs => target_ttr_seconds)),
		    updated_at = $2
		WHERE alert_id = $1 AND resolved_at IS NULL
	`
	if _, err := tx.ExecContext(ctx, query, alertID, at); err != nil {
		return fmt.Errorf("failed to stamp SLA resolve: %w", err)
	}
	return nil
}
