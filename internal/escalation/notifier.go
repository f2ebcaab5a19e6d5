package escalation

import (
	"context"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
)

// Notifier delivers one notification on one channel. Implemented
// externally per channel (email, SMS, webhook, slack).
//
// Implementations classify failures by returning *model.DeliveryError:
// retryable errors are retried with bounded exponential backoff, fatal
// errors fail the attempt immediately. A nil return means delivered.
type Notifier interface {
	Send(ctx context.Context, channel string, recipients []string, alert *model.Alert, tierIndex int) error
}
