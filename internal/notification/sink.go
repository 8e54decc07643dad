// Package notification defines the one-way event sink consumed by the
// billing engine. Delivery transport (email, socket, push) lives behind the
// Sink interface; the engine always treats Notify as fire-and-forget and
// never lets a delivery failure surface into billing state.
package notification

import "context"

// Event keys emitted by the engine.
const (
	EventSubscriptionCreated = "subscription.created"
	EventBillGenerated       = "bill.generated"
	EventPaymentConfirmed    = "payment.confirmed"
	EventRenewalCancelled    = "renewal.cancelled"
	EventBudgetExceeded      = "budget.exceeded"
)

type Sink interface {
	Notify(ctx context.Context, userID string, eventKey string, data map[string]any) error
}

type NoOpSink struct{}

func (NoOpSink) Notify(ctx context.Context, userID string, eventKey string, data map[string]any) error {
	return nil
}
