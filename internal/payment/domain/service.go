package domain

import (
	"context"
	"errors"
	"time"
)

type ConfirmPaymentRequest struct {
	UserID       string     `json:"user_id"`
	RecordID     string     `json:"record_id"`
	ActualAmount *float64   `json:"actual_amount,omitempty"`
	ActualDate   *time.Time `json:"actual_date,omitempty"`
}

type CancelRenewalRequest struct {
	UserID   string `json:"user_id"`
	RecordID string `json:"record_id"`
}

type Service interface {
	Confirm(ctx context.Context, req ConfirmPaymentRequest) (PaymentRecord, error)
	Cancel(ctx context.Context, req CancelRenewalRequest) (PaymentRecord, error)
	ListPending(ctx context.Context, userID string) ([]PaymentRecord, error)
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidRecord    = errors.New("invalid_record")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrRecordNotFound   = errors.New("payment_record_not_found")
	ErrForbidden        = errors.New("forbidden")
	ErrRecordNotPending = errors.New("payment_record_not_pending")
)
