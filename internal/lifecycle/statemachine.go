// Package lifecycle owns the alert state machine: the validated transition
// graph and the operations that append to an alert's audit trail.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// transitions is the full set of valid state moves.
var transitions = map[model.State][]model.State{
	model.StateNew:           {model.StateAcknowledged, model.StateInvestigating, model.StateResolved},
	model.StateAcknowledged:  {model.StateInvestigating, model.StateResolved, model.StateNew},
	model.StateInvestigating: {model.StateResolved},
	model.StateResolved:      {model.StateNew},
}

// CanTransition reports whether moving from one state to another is valid.
func CanTransition(from, to model.State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Storage is the persistence surface the state machine needs.
type Storage interface {
	GetAlertState(ctx context.Context, alertID string) (model.State, error)
	GetStateHistory(ctx context.Context, alertID string) ([]*model.StateRecord, error)
	TransitionAlert(ctx context.Context, alertID string, from, to model.State, actor, notes string, metadata map[string]string, at time.Time) error
}

// StateMachine applies validated transitions to alerts. Each successful
// operation appends exactly one state record; concurrent attempts on the
// same alert are serialized by the store's optimistic state check.
type StateMachine struct {
	storage Storage
	now     func() time.Time
}

// New creates a state machine backed by the given storage.
func New(storage Storage) *StateMachine {
	return &StateMachine{storage: storage, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (m *StateMachine) SetClock(now func() time.Time) {
	m.now = now
}

// Acknowledge moves an alert to acknowledged.
func (m *StateMachine) Acknowledge(ctx context.Context, alertID, actor, notes string) error {
	return m.transition(ctx, alertID, model.StateAcknowledged, actor, notes)
}

// Investigate moves an alert to investigating.
func (m *StateMachine) Investigate(ctx context.Context, alertID, actor string) error {
	return m.transition(ctx, alertID, model.StateInvestigating, actor, "")
}

// Resolve moves an alert to resolved.
func (m *StateMachine) Resolve(ctx context.Context, alertID, actor, notes string) error {
	return m.transition(ctx, alertID, model.StateResolved, actor, notes)
}

// Reopen moves a resolved alert back to new.
func (m *StateMachine) Reopen(ctx context.Context, alertID, actor string) error {
	return m.transitionVia(ctx, alertID, model.StateResolved, model.StateNew, actor, "reopened")
}

// Unacknowledge moves an acknowledged alert back to new.
func (m *StateMachine) Unacknowledge(ctx context.Context, alertID, actor string) error {
	return m.transitionVia(ctx, alertID, model.StateAcknowledged, model.StateNew, actor, "unacknowledged")
}

// transitionVia requires the alert to currently be in a specific state.
// Both resolved->new (reopen) and acknowledged->new (unacknowledge) target
// the same state, so the required origin disambiguates them.
func (m *StateMachine) transitionVia(ctx context.Context, alertID string, requiredFrom, to model.State, actor, notes string) error {
	current, err := m.storage.GetAlertState(ctx, alertID)
	if err != nil {
		return err
	}
	if current != requiredFrom {
		return &model.InvalidTransitionError{AlertID: alertID, From: current, To: to}
	}
	return m.transitionFrom(ctx, alertID, requiredFrom, to, actor, notes)
}

// CurrentState returns the current state of an alert.
func (m *StateMachine) CurrentState(ctx context.Context, alertID string) (model.State, error) {
	return m.storage.GetAlertState(ctx, alertID)
}

// History returns the alert's full state trail, oldest first.
func (m *StateMachine) History(ctx context.Context, alertID string) ([]*model.StateRecord, error) {
	return m.storage.GetStateHistory(ctx, alertID)
}

// transition reads the alert's current state, validates the move, and
// writes it conditioned on that state. A concurrent writer winning the
// race surfaces as ConcurrentModificationError from the store.
func (m *StateMachine) transition(ctx context.Context, alertID string, to model.State, actor, notes string) error {
	current, err := m.storage.GetAlertState(ctx, alertID)
	if err != nil {
		return err
	}
	return m.transitionFrom(ctx, alertID, current, to, actor, notes)
}

func (m *StateMachine) transitionFrom(ctx context.Context, alertID string, from, to model.State, actor, notes string) error {
	if !CanTransition(from, to) {
		return &model.InvalidTransitionError{AlertID: alertID, From: from, To: to}
	}

	at := m.now().UTC()
	if err := m.storage.TransitionAlert(ctx, alertID, from, to, actor, notes, nil, at); err != nil {
		return fmt.Errorf("failed to transition alert %s to %s: %w", alertID, to, err)
	}

	slog.Info("Alert state changed",
		"alert_id", alertID,
		"from", from,
		"to", to,
		"actor", actor,
	)
	return nil
}
