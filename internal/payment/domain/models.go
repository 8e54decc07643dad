// Package domain contains persistence models for payment records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentStatus represents the state of a single payment record.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"

	// PaymentStatusUnpaid is a legacy alias; pending queries match it too.
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
)

// PaymentRecord is one charge on a subscription's billing timeline.
// (SubscriptionID, BillingDate) is the natural key: at most one record exists
// per cycle boundary, enforced by a unique index and surfaced to racing
// writers as a duplicate-key conflict.
type PaymentRecord struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	SubscriptionID snowflake.ID  `gorm:"not null;uniqueIndex:idx_payment_records_cycle"`
	UserID         snowflake.ID  `gorm:"not null;index"`
	Amount         float64       `gorm:"not null"`
	Currency       string        `gorm:"type:text;not null"`
	BillingDate    time.Time     `gorm:"not null;uniqueIndex:idx_payment_records_cycle"`
	Status         PaymentStatus `gorm:"type:text;not null;index"`
	Backfilled     bool          `gorm:"not null;default:false"`
	PaidAt         *time.Time    `gorm:""`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentRecord) TableName() string { return "payment_records" }

// IsPending reports whether the record still awaits user action.
func (r PaymentRecord) IsPending() bool {
	return r.Status == PaymentStatusPending || r.Status == PaymentStatusUnpaid
}

// IsTerminal reports whether no further transitions are allowed.
func (r PaymentRecord) IsTerminal() bool {
	return r.Status == PaymentStatusPaid || r.Status == PaymentStatusCancelled
}
