package escalation

import (
	"context"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// mockStorage implements Storage for engine tests.
type mockStorage struct {
	policies []*model.EscalationPolicy
	listErr  error

	insertedRuns []*model.EscalationRun
	insertErr    error
	insertCalls  int
}

func (m *mockStorage) ListEnabledPolicies(_ context.Context) ([]*model.EscalationPolicy, error) {
	return m.policies, m.listErr
}

func (m *mockStorage) InsertRuns(_ context.Context, runs []*model.EscalationRun) error {
	m.insertCalls++
	if m.insertErr != nil {
		return m.insertErr
	}
	m.insertedRuns = append(m.insertedRuns, runs...)
	return nil
}

// mockDispatchStorage implements DispatchStorage for dispatcher tests.
type mockDispatchStorage struct {
	dueRuns  []*model.EscalationRun
	claimErr error

	alerts   map[string]*model.Alert
	alertErr error

	policies  map[string]*model.EscalationPolicy
	policyErr error

	finished  []finishedRun
	finishErr error
}

type finishedRun struct {
	runID     string
	status    model.RunStatus
	lastError string
}

func (m *mockDispatchStorage) ClaimDueRuns(_ context.Context, limit int) ([]*model.EscalationRun, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	if len(m.dueRuns) > limit {
		return m.dueRuns[:limit], nil
	}
	return m.dueRuns, nil
}

func (m *mockDispatchStorage) GetAlert(_ context.Context, alertID string) (*model.Alert, error) {
	if m.alertErr != nil {
		return nil, m.alertErr
	}
	alert, ok := m.alerts[alertID]
	if !ok {
		return nil, model.ErrAlertNotFound
	}
	return alert, nil
}

func (m *mockDispatchStorage) GetPolicy(_ context.Context, policyID string) (*model.EscalationPolicy, error) {
	if m.policyErr != nil {
		return nil, m.policyErr
	}
	policy, ok := m.policies[policyID]
	if !ok {
		return nil, model.ErrPolicyNotFound
	}
	return policy, nil
}

func (m *mockDispatchStorage) FinishRun(_ context.Context, runID string, status model.RunStatus, lastError string) error {
	if m.finishErr != nil {
		return m.finishErr
	}
	m.finished = append(m.finished, finishedRun{runID: runID, status: status, lastError: lastError})
	return nil
}

// mockNotifier records sends and can fail per channel.
type mockNotifier struct {
	sends   []sentNotification
	failsOn map[string]error
}

type sentNotification struct {
	channel    string
	recipients []string
	alertID    string
	tierIndex  int
}

func (m *mockNotifier) Send(_ context.Context, channel string, recipients []string, alert *model.Alert, tierIndex int) error {
	if err, ok := m.failsOn[channel]; ok {
		return err
	}
	m.sends = append(m.sends, sentNotification{
		channel:    channel,
		recipients: recipients,
		alertID:    alert.AlertID,
		tierIndex:  tierIndex,
	})
	return nil
}

// mockResolver returns a fixed on-call member.
type mockResolver struct {
	member string
	err    error
	gotRef string
	gotAt  time.Time
}

func (m *mockResolver) Current(_ context.Context, scheduleID string, at time.Time) (string, error) {
	m.gotRef = scheduleID
	m.gotAt = at
	if m.err != nil {
		return "", m.err
	}
	return m.member, nil
}
