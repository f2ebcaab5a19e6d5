package model

import "time"

// GroupStatus is the lifecycle status of an alert group.
type GroupStatus string

// Alert group statuses.
const (
	GroupActive GroupStatus = "active"
	GroupClosed GroupStatus = "closed"
)

// AlertGroup collects raw occurrences that share a dedup key within a
// time window. One group owns exactly one alert; occurrences appended to
// an existing group never create new alerts.
type AlertGroup struct {
	GroupID           string
	GroupKey          string
	AlertID           string
	FirstOccurrenceAt time.Time
	LastOccurrenceAt  time.Time
	OccurrenceCount   int64
	Status            GroupStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// GroupStats is the read-side noise reduction statistic.
type GroupStats struct {
	TotalOccurrences int64   `json:"total_occurrences"`
	GroupsCreated    int64   `json:"groups_created"`
	ActiveGroups     int64   `json:"active_groups"`
	NoiseReduction   float64 `json:"noise_reduction"`
}
