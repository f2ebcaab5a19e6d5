package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// InsertPolicy persists an escalation policy. Tiers are stored as a JSON
// blob; callers must have validated the policy against its schema first.
func (db *DB) InsertPolicy(ctx context.Context, policy *model.EscalationPolicy) error {
	tiersJSON, err := json.Marshal(policy.Tiers)
	if err != nil {
		return fmt.Errorf("failed to marshal policy tiers: %w", err)
	}

	severities := make([]string, len(policy.SeverityMatch))
	for i, s := range policy.SeverityMatch {
		severities[i] = string(s)
	}

	query := `
		INSERT INTO escalation_policies (policy_id, name, severity_match, priority, tiers, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err = db.conn.ExecContext(ctx, query,
		policy.PolicyID, policy.Name, pq.Array(severities), policy.Priority, string(tiersJSON), policy.Enabled,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("policy already exists: %s", policy.PolicyID)
			}
		}
		return fmt.Errorf("failed to insert policy: %w", err)
	}
	return nil
}

// GetPolicy retrieves a policy by ID.
func (db *DB) GetPolicy(ctx context.Context, policyID string) (*model.EscalationPolicy, error) {
	query := `
		SELECT policy_id, name, severity_match, priority, tiers, enabled, created_at, updated_at
		FROM escalation_policies
		WHERE policy_id = $1
	`
	policy, err := scanPolicy(db.conn.QueryRowContext(ctx, query, policyID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", model.ErrPolicyNotFound, policyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return policy, nil
}

// ListEnabledPolicies retrieves all enabled policies ordered by priority
// descending, then policy id ascending. The ordering makes policy
// selection deterministic: the first match wins.
func (db *DB) ListEnabledPolicies(ctx context.Context) ([]*model.EscalationPolicy, error) {
	query := `
		SELECT policy_id, name, severity_match, priority, tiers, enabled, created_at, updated_at
		FROM escalation_policies
		WHERE enabled = TRUE
		ORDER BY priority DESC, policy_id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled policies: %w", err)
	}
	defer rows.Close()

	var policies []*model.EscalationPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

func scanPolicy(row interface{ Scan(...any) error }) (*model.EscalationPolicy, error) {
	var p model.EscalationPolicy
	var severities pq.StringArray
	var tiersJSON string
	err := row.Scan(
		&p.PolicyID,
		&p.Name,
		&severities,
		&p.Priority,
		&tiersJSON,
		&p.Enabled,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.SeverityMatch = make([]model.Severity, len(severities))
	for i, s := range severities {
		p.SeverityMatch[i] = model.Severity(s)
	}
	if err := json.Unmarshal([]byte(tiersJSON), &p.Tiers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy tiers: %w", err)
	}
	return &p, nil
}
