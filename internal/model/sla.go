package model

import "time"

// AlertSLA tracks the acknowledge/resolve deadlines for a single alert.
// Created exactly once per alert; breach flags only ever move false to true.
type AlertSLA struct {
	AlertID        string
	Severity       Severity
	TargetTTA      time.Duration
	TargetTTR      time.Duration
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
	TTA            *time.Duration
	TTR            *time.Duration
	TTABreached    bool
	TTRBreached    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ComplianceRow aggregates SLA breach counts for one severity over a
// reporting period. Pure read-side data.
type ComplianceRow struct {
	Severity      Severity `json:"severity"`
	TotalAlerts   int64    `json:"total_alerts"`
	TTABreached   int64    `json:"tta_breached"`
	TTRBreached   int64    `json:"ttr_breached"`
	TTACompliance float64  `json:"tta_compliance_pct"`
	TTRCompliance float64  `json:"ttr_compliance_pct"`
}
