package model

import "time"

// State is the lifecycle state of an alert.
type State string

// Alert lifecycle states.
const (
	StateNew           State = "new"
	StateAcknowledged  State = "acknowledged"
	StateInvestigating State = "investigating"
	StateResolved      State = "resolved"
)

var validStates = map[State]struct{}{
	StateNew:           {},
	StateAcknowledged:  {},
	StateInvestigating: {},
	StateResolved:      {},
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := validStates[s]
	return ok
}

// Terminal reports whether s is a state that stops pending escalations
// under the default cancellation rule.
func (s State) Terminal() bool {
	return s == StateAcknowledged || s == StateResolved
}

// Occurrence is a single raw anomaly or rule trigger produced by an
// external alert source. Occurrences are grouped before they become alerts.
type Occurrence struct {
	SourceID   string
	CheckName  string
	Severity   Severity
	Message    string
	Value      float64
	Threshold  float64
	ObservedAt time.Time
}

// Alert is a tracked operational alert. Immutable after creation;
// all lifecycle changes happen through appended state records.
type Alert struct {
	AlertID      string
	SourceID     string
	CheckName    string
	Severity     Severity
	Message      string
	Value        float64
	Threshold    float64
	CurrentState State
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StateRecord is one entry of an alert's append-only state audit trail.
// The latest record for an alert defines its current state.
type StateRecord struct {
	RecordID  int64
	AlertID   string
	State     State
	Actor     string
	Notes     string
	Metadata  map[string]string
	CreatedAt time.Time
}
