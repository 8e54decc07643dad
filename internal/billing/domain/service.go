// Package domain defines the bill generator contract consumed by the
// scheduler, the subscription lifecycle and the confirmation flow.
package domain

import (
	"context"
	"errors"
)

type Generator interface {
	// RunDailySweep generates or advances bills for every active
	// subscription whose due date has arrived. Idempotent; per-subscription
	// failures are isolated and never abort the sweep.
	RunDailySweep(ctx context.Context) error

	// GenerateOrAdvance processes a single subscription's current due date.
	// It returns true when a new pending record was created. When the due
	// cycle is already PAID it advances the due date one step and returns
	// false; catch-up across several missed cycles takes repeated calls.
	GenerateOrAdvance(ctx context.Context, subscriptionID string) (bool, error)
}

var (
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
