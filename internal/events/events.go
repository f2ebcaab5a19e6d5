// Package events defines the wire format of the alerts.raw occurrence
// topic fed by external rule engines and anomaly detectors.
package events

import (
	"fmt"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// SchemaVersion is the current raw occurrence schema version.
const SchemaVersion = 1

// RawOccurrence is one anomaly or rule trigger as published on the
// alerts.raw topic.
type RawOccurrence struct {
	SchemaVersion int     `json:"schema_version"`
	EventTS       int64   `json:"event_ts"` // unix milliseconds
	SourceID      string  `json:"source_id"`
	CheckName     string  `json:"check_name"`
	Severity      string  `json:"severity"`
	Message       string  `json:"message,omitempty"`
	Value         float64 `json:"value"`
	Threshold     float64 `json:"threshold"`
}

// Validate checks the event's required fields.
func (r *RawOccurrence) Validate() error {
	if r.SourceID == "" {
		return fmt.Errorf("source_id cannot be empty")
	}
	if r.CheckName == "" {
		return fmt.Errorf("check_name cannot be empty")
	}
	if _, err := model.ParseSeverity(r.Severity); err != nil {
		return err
	}
	return nil
}

// ToOccurrence converts the wire event to the domain occurrence.
// Validate must have accepted the event first.
func (r *RawOccurrence) ToOccurrence() *model.Occurrence {
	return &model.Occurrence{
		SourceID:   r.SourceID,
		CheckName:  r.CheckName,
		Severity:   model.Severity(r.Severity),
		Message:    r.Message,
		Value:      r.Value,
		Threshold:  r.Threshold,
		ObservedAt: time.UnixMilli(r.EventTS).UTC(),
	}
}
