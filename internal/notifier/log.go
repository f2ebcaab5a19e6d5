// Package notifier provides the built-in log-only Notifier used when no
// real transport is wired in. Real email/SMS/webhook transports live
// outside the core and implement escalation.Notifier.
package notifier

import (
	"context"
	"log/slog"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// Log writes every notification to the structured log instead of
// delivering it. Useful for development and for running the core before
// transports are configured.
type Log struct{}

// NewLog creates a log-only notifier.
func NewLog() *Log {
	return &Log{}
}

// Send logs the notification and reports success.
func (n *Log) Send(_ context.Context, channel string, recipients []string, alert *model.Alert, tierIndex int) error {
	slog.Info("Notification (log transport)",
		"channel", channel,
		"recipients", recipients,
		"alert_id", alert.AlertID,
		"severity", alert.Severity,
		"message", alert.Message,
		"tier", tierIndex,
	)
	return nil
}
