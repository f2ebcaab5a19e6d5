package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// InsertRuns inserts pending escalation runs. The unique key on
// (alert_id, policy_id, tier_index) makes re-running the scheduler for the
// same alert a no-op: conflicting rows are skipped.
func (db *DB) InsertRuns(ctx context.Context, runs []*model.EscalationRun) error {
	if len(runs) == 0 {
		return nil
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO escalation_runs (run_id, alert_id, policy_id, tier_index, status, scheduled_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'pending', $5, NOW(), NOW())
			ON CONFLICT (alert_id, policy_id, tier_index) DO NOTHING
		`
		for _, run := range runs {
			if _, err := tx.ExecContext(ctx, query,
				run.RunID, run.AlertID, run.PolicyID, run.TierIndex, run.ScheduledAt,
			); err != nil {
				return fmt.Errorf("failed to insert escalation run: %w", err)
			}
		}
		return nil
	})
}

// StaleRunTimeout is the visibility timeout for claimed runs. A run that
// stays in_progress longer than this was claimed by a dispatcher that
// crashed before finishing it and becomes claimable again.
const StaleRunTimeout = 5 * time.Minute

// ClaimDueRuns atomically moves due pending runs to in_progress and
// returns them. SKIP LOCKED lets multiple dispatcher instances claim
// disjoint sets of runs concurrently. Runs stuck in_progress past the
// visibility timeout are reclaimed too; the dispatcher's final state
// guard makes the re-dispatch safe.
func (db *DB) ClaimDueRuns(ctx context.Context, limit int) ([]*model.EscalationRun, error) {
	query := `
		UPDATE escalation_runs
		SET status = 'in_progress',
		    updated_at = NOW()
		WHERE run_id IN (
			SELECT run_id
			FROM escalation_runs
			WHERE (status = 'pending' AND scheduled_at <= NOW())
			   OR (status = 'in_progress' AND updated_at < NOW() - ($2 * INTERVAL '1 second'))
			ORDER BY scheduled_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING run_id, alert_id, policy_id, tier_index, status, scheduled_at, executed_at, last_error, created_at, updated_at
	`
	rows, err := db.conn.QueryContext(ctx, query, limit, StaleRunTimeout.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim due runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.EscalationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// FinishRun records the terminal status of a claimed run. The executed_at
// timestamp is written only here, after the notifier call has returned;
// no lock is held across the network call.
func (db *DB) FinishRun(ctx context.Context, runID string, status model.RunStatus, lastError string) error {
	query := `
		UPDATE escalation_runs
		SET status = $2,
		    executed_at = NOW(),
		    last_error = $3,
		    updated_at = NOW()
		WHERE run_id = $1 AND status = 'in_progress'
	`
	result, err := db.conn.ExecContext(ctx, query, runID, status, lastError)
	if err != nil {
		return fmt.Errorf("failed to finish escalation run: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("escalation run not in progress: %s", runID)
	}
	return nil
}

// ListRunsForAlert retrieves all escalation runs for an alert, ordered by
// tier index.
func (db *DB) ListRunsForAlert(ctx context.Context, alertID string) ([]*model.EscalationRun, error) {
	query := `
		SELECT run_id, alert_id, policy_id, tier_index, status, scheduled_at, executed_at, last_error, created_at, updated_at
		FROM escalation_runs
		WHERE alert_id = $1
		ORDER BY tier_index ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for alert: %w", err)
	}
	defer rows.Close()

	var runs []*model.EscalationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row interface{ Scan(...any) error }) (*model.EscalationRun, error) {
	var run model.EscalationRun
	var executedAt sql.NullTime
	var lastError sql.NullString
	err := row.Scan(
		&run.RunID,
		&run.AlertID,
		&run.PolicyID,
		&run.TierIndex,
		&run.Status,
		&run.ScheduledAt,
		&executedAt,
		&lastError,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if executedAt.Valid {
		t := executedAt.Time
		run.ExecutedAt = &t
	}
	if lastError.Valid {
		run.LastError = lastError.String
	}
	return &run, nil
}
