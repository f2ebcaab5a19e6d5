// Package model defines the persisted entities of the alert lifecycle core
// and the validation applied to them before they reach storage.
package model

import "fmt"

// Severity classifies how urgent an alert is.
type Severity string

// Severity values, ordered from most to least urgent.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists all valid severity values.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
}

var validSeverities = map[Severity]struct{}{
	SeverityCritical: {},
	SeverityHigh:     {},
	SeverityMedium:   {},
	SeverityLow:      {},
	SeverityInfo:     {},
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := validSeverities[s]
	return ok
}

// ParseSeverity converts a string to a Severity.
// Returns an error for unknown values.
func ParseSeverity(value string) (Severity, error) {
	s := Severity(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity: %q", value)
	}
	return s, nil
}
