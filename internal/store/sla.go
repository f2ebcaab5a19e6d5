package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// GetSLA retrieves the SLA row for an alert.
func (db *DB) GetSLA(ctx context.Context, alertID string) (*model.AlertSLA, error) {
	query := `
		SELECT alert_id, severity, target_tta_seconds, target_ttr_seconds,
		       acknowledged_at, resolved_at, tta_seconds, ttr_seconds,
		       tta_breached, ttr_breached, created_at, updated_at
		FROM alert_slas
		WHERE alert_id = $1
	`
	var s model.AlertSLA
	var targetTTA, targetTTR int64
	var ackAt, resAt sql.NullTime
	var ttaSecs, ttrSecs sql.NullInt64
	err := db.conn.QueryRowContext(ctx, query, alertID).Scan(
		&s.AlertID,
		&s.Severity,
		&targetTTA,
		&targetTTR,
		&ackAt,
		&resAt,
		&ttaSecs,
		&ttrSecs,
		&s.TTABreached,
		&s.TTRBreached,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("SLA not found for alert: %s", alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get SLA: %w", err)
	}

	s.TargetTTA = time.Duration(targetTTA) * time.Second
	s.TargetTTR = time.Duration(targetTTR) * time.Second
	if ackAt.Valid {
		t := ackAt.Time
		s.AcknowledgedAt = &t
	}
	if resAt.Valid {
		t := resAt.Time
		s.ResolvedAt = &t
	}
	if ttaSecs.Valid {
		d := time.Duration(ttaSecs.Int64) * time.Second
		s.TTA = &d
	}
	if ttrSecs.Valid {
		d := time.Duration(ttrSecs.Int64) * time.Second
		s.TTR = &d
	}
	return &s, nil
}

// ClaimTTABreaches flags alerts whose acknowledge deadline already passed
// without an acknowledgement. The flag write is monotonic: rows are only
// selected while the flag is still false, so a crash/retry of the sweep
// can never fire the same breach twice or clear it.
func (db *DB) ClaimTTABreaches(ctx context.Context, limit int) ([]string, error) {
	query := `
		UPDATE alert_slas
		SET tta_breached = TRUE,
		    updated_at = NOW()
		WHERE alert_id IN (
			SELECT alert_id
			FROM alert_slas
			WHERE tta_breached = FALSE
			  AND acknowledged_at IS NULL
			  AND created_at + make_interval(secs => target_tta_seconds) < NOW()
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING alert_id
	`
	return db.claimIDs(ctx, query, "TTA breaches", limit)
}

// ClaimTTRBreaches flags alerts whose resolve deadline already passed
// without a resolution. Same monotonic claim semantics as ClaimTTABreaches.
func (db *DB) ClaimTTRBreaches(ctx context.Context, limit int) ([]string, error) {
	query := `
		UPDATE alert_slas
		SET ttr_breached = TRUE,
		    updated_at = NOW()
		WHERE alert_id IN (
			SELECT alert_id
			FROM alert_slas
			WHERE ttr_breached = FALSE
			  AND resolved_at IS NULL
			  AND created_at + make_interval(secs => target_ttr_seconds) < NOW()
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING alert_id
	`
	return db.claimIDs(ctx, query, "TTR breaches", limit)
}

func (db *DB) claimIDs(ctx context.Context, query, operation string, limit int) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim %s: %w", operation, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan alert id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ComplianceReport aggregates breach counts and compliance percentages by
// severity for alerts created inside [from, to). A nil severity covers all
// severities.
func (db *DB) ComplianceReport(ctx context.Context, severity *model.Severity, from, to time.Time) ([]*model.ComplianceRow, error) {
	var query string
	var args []interface{}

	if severity != nil {
		query = `
			SELECT severity, COUNT(*),
			       COUNT(*) FILTER (WHERE tta_breached),
			       COUNT(*) FILTER (WHERE ttr_breached)
			FROM alert_slas
			WHERE severity = $1 AND created_at >= $2 AND created_at < $3
			GROUP BY severity
		`
		args = []interface{}{*severity, from, to}
	} else {
		query = `
			SELECT severity, COUNT(*),
			       COUNT(*) FILTER (WHERE tta_breached),
			       COUNT(*) FILTER (WHERE ttr_breached)
			FROM alert_slas
			WHERE created_at >= $1 AND created_at < $2
			GROUP BY severity
			ORDER BY severity
		`
		args = []interface{}{from, to}
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build compliance report: %w", err)
	}
	defer rows.Close()

	var report []*model.ComplianceRow
	for rows.Next() {
		var row model.ComplianceRow
		if err := rows.Scan(&row.Severity, &row.TotalAlerts, &row.TTABreached, &row.TTRBreached); err != nil {
			return nil, fmt.Errorf("failed to scan compliance row: %w", err)
		}
		if row.TotalAlerts > 0 {
			row.TTACompliance = 100 * float64(row.TotalAlerts-row.TTABreached) / float64(row.TotalAlerts)
			row.TTRCompliance = 100 * float64(row.TotalAlerts-row.TTRBreached) / float64(row.TotalAlerts)
		}
		report = append(report, &row)
	}
	return report, rows.Err()
}
