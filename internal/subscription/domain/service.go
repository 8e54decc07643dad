package domain

import (
	"context"
	"errors"
	"time"

	"github.com/subtrackhq/subtrack/pkg/db/pagination"
)

type CreateSubscriptionRequest struct {
	UserID             string         `json:"user_id"`
	Name               string         `json:"name"`
	StartDate          time.Time      `json:"start_date"`
	BillingCycle       string         `json:"billing_cycle"`
	Price              float64        `json:"price"`
	Currency           string         `json:"currency"`
	CategoryID         string         `json:"category_id,omitempty"`
	AutoRenewal        *bool          `json:"auto_renewal,omitempty"`
	EnableNotification bool           `json:"enable_notification,omitempty"`
	NotifyDaysBefore   int            `json:"notify_days_before,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

type UpdateSubscriptionRequest struct {
	SubscriptionID     string     `json:"subscription_id"`
	UserID             string     `json:"user_id"`
	Name               *string    `json:"name,omitempty"`
	Price              *float64   `json:"price,omitempty"`
	Currency           *string    `json:"currency,omitempty"`
	BillingCycle       *string    `json:"billing_cycle,omitempty"`
	StartDate          *time.Time `json:"start_date,omitempty"`
	CategoryID         *string    `json:"category_id,omitempty"`
	EnableNotification *bool      `json:"enable_notification,omitempty"`
	NotifyDaysBefore   *int       `json:"notify_days_before,omitempty"`
}

type ListSubscriptionRequest struct {
	UserID    string
	Status    string
	SortBy    string
	SortOrder string
	PageToken string
	PageSize  int32
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
	Update(ctx context.Context, req UpdateSubscriptionRequest) (Subscription, error)
	GetByID(ctx context.Context, userID, subscriptionID string) (Subscription, error)
	List(ctx context.Context, req ListSubscriptionRequest) (ListSubscriptionResponse, error)
	Pause(ctx context.Context, userID, subscriptionID string) error
	Resume(ctx context.Context, userID, subscriptionID string) error
	Cancel(ctx context.Context, userID, subscriptionID string) error
}

var (
	ErrInvalidUser           = errors.New("invalid_user")
	ErrInvalidSubscription   = errors.New("invalid_subscription")
	ErrInvalidName           = errors.New("invalid_name")
	ErrInvalidPrice          = errors.New("invalid_price")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidStartDate      = errors.New("invalid_start_date")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrInvalidTransition     = errors.New("invalid_transition")
	ErrSubscriptionNotFound  = errors.New("subscription_not_found")
	ErrForbidden             = errors.New("forbidden")
	ErrSubscriptionCancelled = errors.New("subscription_cancelled")
)
