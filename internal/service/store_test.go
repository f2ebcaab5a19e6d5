package service

import (
	"context"
	"fmt"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/store"
)

// memStore is an in-memory stand-in for the PostgreSQL store. It backs
// every component interface so facade tests can run full ingest,
// lifecycle, and reporting flows without a database.
type memStore struct {
	alerts    map[string]*model.Alert
	records   map[string][]*model.StateRecord
	groups    map[string]*model.AlertGroup
	slas      map[string]*model.AlertSLA
	policies  map[string]*model.EscalationPolicy
	schedules map[string]*model.OnCallSchedule
	runs      []*model.EscalationRun

	// now stands in for the database clock in the claim sweeps.
	now time.Time
}

func newMemStore() *memStore {
	return &memStore{
		alerts:    make(map[string]*model.Alert),
		records:   make(map[string][]*model.StateRecord),
		groups:    make(map[string]*model.AlertGroup),
		slas:      make(map[string]*model.AlertSLA),
		policies:  make(map[string]*model.EscalationPolicy),
		schedules: make(map[string]*model.OnCallSchedule),
	}
}

func (m *memStore) AppendOccurrence(_ context.Context, groupKey string, at time.Time, window time.Duration) (string, bool, error) {
	group, ok := m.groups[groupKey]
	if !ok || group.Status != model.GroupActive || at.Sub(group.LastOccurrenceAt) > window {
		return "", false, nil
	}
	group.LastOccurrenceAt = at
	group.OccurrenceCount++
	return group.AlertID, true, nil
}

func (m *memStore) CreateGroupedAlert(_ context.Context, alert *model.Alert, group *model.AlertGroup, targetTTA, targetTTR time.Duration) error {
	if existing, ok := m.groups[group.GroupKey]; ok && existing.Status == model.GroupActive {
		return store.ErrDuplicateActiveGroup
	}
	m.groups[group.GroupKey] = group
	m.alerts[alert.AlertID] = alert
	m.records[alert.AlertID] = []*model.StateRecord{{
		AlertID:   alert.AlertID,
		State:     model.StateNew,
		Actor:     "system",
		Notes:     "alert created",
		CreatedAt: alert.CreatedAt,
	}}
	m.slas[alert.AlertID] = &model.AlertSLA{
		AlertID:   alert.AlertID,
		Severity:  alert.Severity,
		TargetTTA: targetTTA,
		TargetTTR: targetTTR,
		CreatedAt: alert.CreatedAt,
	}
	return nil
}

func (m *memStore) CloseExpiredGroup(_ context.Context, groupKey string, at time.Time, window time.Duration) error {
	group, ok := m.groups[groupKey]
	if ok && group.Status == model.GroupActive && at.Sub(group.LastOccurrenceAt) > window {
		group.Status = model.GroupClosed
	}
	return nil
}

func (m *memStore) GroupStats(_ context.Context, since time.Time) (*model.GroupStats, error) {
	stats := &model.GroupStats{}
	for _, g := range m.groups {
		if g.FirstOccurrenceAt.Before(since) {
			continue
		}
		stats.TotalOccurrences += g.OccurrenceCount
		stats.GroupsCreated++
		if g.Status == model.GroupActive {
			stats.ActiveGroups++
		}
	}
	if stats.TotalOccurrences > 0 {
		stats.NoiseReduction = 1 - float64(stats.GroupsCreated)/float64(stats.TotalOccurrences)
	}
	return stats, nil
}

func (m *memStore) GetAlert(_ context.Context, alertID string) (*model.Alert, error) {
	alert, ok := m.alerts[alertID]
	if !ok {
		return nil, model.ErrAlertNotFound
	}
	copied := *alert
	return &copied, nil
}

func (m *memStore) GetAlertState(_ context.Context, alertID string) (model.State, error) {
	alert, ok := m.alerts[alertID]
	if !ok {
		return "", model.ErrAlertNotFound
	}
	return alert.CurrentState, nil
}

func (m *memStore) GetStateHistory(_ context.Context, alertID string) ([]*model.StateRecord, error) {
	return m.records[alertID], nil
}

func (m *memStore) TransitionAlert(_ context.Context, alertID string, from, to model.State, actor, notes string, _ map[string]string, at time.Time) error {
	alert, ok := m.alerts[alertID]
	if !ok {
		return model.ErrAlertNotFound
	}
	if alert.CurrentState != from {
		return &model.ConcurrentModificationError{AlertID: alertID, Expected: from}
	}
	alert.CurrentState = to
	alert.UpdatedAt = at
	m.records[alertID] = append(m.records[alertID], &model.StateRecord{
		AlertID:   alertID,
		State:     to,
		Actor:     actor,
		Notes:     notes,
		CreatedAt: at,
	})

	// SLA stamps mirror the store: recorded once, breach flags only move
	// false to true.
	sla := m.slas[alertID]
	if sla == nil {
		return nil
	}
	switch to {
	case model.StateAcknowledged:
		if sla.AcknowledgedAt == nil {
			stamp := at
			sla.AcknowledgedAt = &stamp
			elapsed := at.Sub(sla.CreatedAt)
			sla.TTA = &elapsed
			sla.TTABreached = sla.TTABreached || elapsed > sla.TargetTTA
		}
	case model.StateResolved:
		if sla.ResolvedAt == nil {
			stamp := at
			sla.ResolvedAt = &stamp
			elapsed := at.Sub(sla.CreatedAt)
			sla.TTR = &elapsed
			sla.TTRBreached = sla.TTRBreached || elapsed > sla.TargetTTR
		}
	}
	return nil
}

func (m *memStore) GetSLA(_ context.Context, alertID string) (*model.AlertSLA, error) {
	sla, ok := m.slas[alertID]
	if !ok {
		return nil, fmt.Errorf("SLA not found for alert: %s", alertID)
	}
	return sla, nil
}

// ClaimTTABreaches mirrors the store's monotonic claim: only unset flags
// on unacknowledged alerts past their target are flipped, and they flip
// exactly once.
func (m *memStore) ClaimTTABreaches(_ context.Context, limit int) ([]string, error) {
	var claimed []string
	for id, sla := range m.slas {
		if len(claimed) == limit {
			break
		}
		if sla.TTABreached || sla.AcknowledgedAt != nil {
			continue
		}
		if m.now.Sub(sla.CreatedAt) > sla.TargetTTA {
			sla.TTABreached = true
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

func (m *memStore) ClaimTTRBreaches(_ context.Context, limit int) ([]string, error) {
	var claimed []string
	for id, sla := range m.slas {
		if len(claimed) == limit {
			break
		}
		if sla.TTRBreached || sla.ResolvedAt != nil {
			continue
		}
		if m.now.Sub(sla.CreatedAt) > sla.TargetTTR {
			sla.TTRBreached = true
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

func (m *memStore) ComplianceReport(_ context.Context, severity *model.Severity, from, to time.Time) ([]*model.ComplianceRow, error) {
	byseverity := make(map[model.Severity]*model.ComplianceRow)
	for _, sla := range m.slas {
		if severity != nil && sla.Severity != *severity {
			continue
		}
		if sla.CreatedAt.Before(from) || !sla.CreatedAt.Before(to) {
			continue
		}
		row, ok := byseverity[sla.Severity]
		if !ok {
			row = &model.ComplianceRow{Severity: sla.Severity}
			byseverity[sla.Severity] = row
		}
		row.TotalAlerts++
		if sla.TTABreached {
			row.TTABreached++
		}
		if sla.TTRBreached {
			row.TTRBreached++
		}
	}
	var report []*model.ComplianceRow
	for _, row := range byseverity {
		row.TTACompliance = 100 * float64(row.TotalAlerts-row.TTABreached) / float64(row.TotalAlerts)
		row.TTRCompliance = 100 * float64(row.TotalAlerts-row.TTRBreached) / float64(row.TotalAlerts)
		report = append(report, row)
	}
	return report, nil
}

func (m *memStore) GetSchedule(_ context.Context, scheduleID string) (*model.OnCallSchedule, error) {
	schedule, ok := m.schedules[scheduleID]
	if !ok {
		return nil, model.ErrScheduleNotFound
	}
	return schedule, nil
}

func (m *memStore) CloseGroupForAlert(_ context.Context, alertID string) error {
	for _, g := range m.groups {
		if g.AlertID == alertID && g.Status == model.GroupActive {
			g.Status = model.GroupClosed
		}
	}
	return nil
}

func (m *memStore) InsertPolicy(_ context.Context, policy *model.EscalationPolicy) error {
	if _, ok := m.policies[policy.PolicyID]; ok {
		return fmt.Errorf("policy already exists: %s", policy.PolicyID)
	}
	m.policies[policy.PolicyID] = policy
	return nil
}

func (m *memStore) InsertSchedule(_ context.Context, schedule *model.OnCallSchedule) error {
	if _, ok := m.schedules[schedule.ScheduleID]; ok {
		return fmt.Errorf("schedule already exists: %s", schedule.ScheduleID)
	}
	m.schedules[schedule.ScheduleID] = schedule
	return nil
}

func (m *memStore) ListRunsForAlert(_ context.Context, alertID string) ([]*model.EscalationRun, error) {
	var runs []*model.EscalationRun
	for _, run := range m.runs {
		if run.AlertID == alertID {
			runs = append(runs, run)
		}
	}
	return runs, nil
}

func (m *memStore) ListEnabledPolicies(_ context.Context) ([]*model.EscalationPolicy, error) {
	var policies []*model.EscalationPolicy
	for _, p := range m.policies {
		if p.Enabled {
			policies = append(policies, p)
		}
	}
	return policies, nil
}

func (m *memStore) InsertRuns(_ context.Context, runs []*model.EscalationRun) error {
	for _, run := range runs {
		duplicate := false
		for _, existing := range m.runs {
			if existing.AlertID == run.AlertID && existing.PolicyID == run.PolicyID && existing.TierIndex == run.TierIndex {
				duplicate = true
				break
			}
		}
		if !duplicate {
			m.runs = append(m.runs, run)
		}
	}
	return nil
}
