package model

import (
	"fmt"
	"time"
)

// Valid notification channels for escalation tiers.
var validChannels = map[string]struct{}{
	"email":   {},
	"sms":     {},
	"webhook": {},
	"slack":   {},
}

// ValidChannel reports whether channel is a known notification channel.
func ValidChannel(channel string) bool {
	_, ok := validChannels[channel]
	return ok
}

// Tier is one step of an escalation policy. Recipients are either listed
// directly or resolved at dispatch time through an on-call schedule.
type Tier struct {
	Delay       time.Duration `json:"delay"`
	Channels    []string      `json:"channels"`
	Recipients  []string      `json:"recipients,omitempty"`
	ScheduleRef string        `json:"schedule_ref,omitempty"`
	// Mandatory tiers fire even after the alert is acknowledged or resolved.
	Mandatory bool `json:"mandatory,omitempty"`
}

// EscalationPolicy maps alert severities to an ordered list of
// notification tiers.
type EscalationPolicy struct {
	PolicyID      string
	Name          string
	SeverityMatch []Severity
	Priority      int
	Tiers         []Tier
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Matches reports whether the policy applies to the given severity.
func (p *EscalationPolicy) Matches(severity Severity) bool {
	for _, s := range p.SeverityMatch {
		if s == severity {
			return true
		}
	}
	return false
}

// Validate checks the policy against its write-time schema.
// A policy that fails validation must never reach storage.
func (p *EscalationPolicy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name cannot be empty")
	}
	if len(p.SeverityMatch) == 0 {
		return fmt.Errorf("policy %s: severity_match cannot be empty", p.Name)
	}
	for _, s := range p.SeverityMatch {
		if !s.Valid() {
			return fmt.Errorf("policy %s: unknown severity %q in severity_match", p.Name, s)
		}
	}
	if len(p.Tiers) == 0 {
		return fmt.Errorf("policy %s: must have at least one tier", p.Name)
	}
	var prevDelay time.Duration
	for i, tier := range p.Tiers {
		if tier.Delay < 0 {
			return fmt.Errorf("policy %s: tier %d has negative delay", p.Name, i)
		}
		if i > 0 && tier.Delay < prevDelay {
			return fmt.Errorf("policy %s: tier %d delay %s is less than tier %d delay %s",
				p.Name, i, tier.Delay, i-1, prevDelay)
		}
		prevDelay = tier.Delay
		if len(tier.Channels) == 0 {
			return fmt.Errorf("policy %s: tier %d has no channels", p.Name, i)
		}
		for _, ch := range tier.Channels {
			if !ValidChannel(ch) {
				return fmt.Errorf("policy %s: tier %d has unknown channel %q", p.Name, i, ch)
			}
		}
		if len(tier.Recipients) == 0 && tier.ScheduleRef == "" {
			return fmt.Errorf("policy %s: tier %d needs recipients or a schedule_ref", p.Name, i)
		}
	}
	return nil
}

// RunStatus is the bookkeeping status of a scheduled escalation tier.
type RunStatus string

// Escalation run statuses.
const (
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunCancelled  RunStatus = "cancelled"
	RunFailed     RunStatus = "failed"
)

// EscalationRun is one scheduled tier dispatch for one alert.
// The (AlertID, PolicyID, TierIndex) triple is unique: rescheduling the
// same alert is a no-op and crash/retry dispatch stays idempotent.
type EscalationRun struct {
	RunID       string
	AlertID     string
	PolicyID    string
	TierIndex   int
	Status      RunStatus
	ScheduledAt time.Time
	ExecutedAt  *time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
