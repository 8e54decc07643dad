// Package domain contains persistence models for subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/subtrackhq/subtrack/internal/cyclemath"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPaused    SubscriptionStatus = "PAUSED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

// Subscription captures a user's recurring billing agreement. NextPayment is
// the next unconsumed cycle boundary; it only moves forward, and only through
// cyclemath advancement.
type Subscription struct {
	ID                 snowflake.ID       `gorm:"primaryKey"`
	UserID             snowflake.ID       `gorm:"not null;index"`
	Name               string             `gorm:"type:text;not null"`
	StartDate          time.Time          `gorm:"not null"`
	BillingCycle       cyclemath.Cycle    `gorm:"type:text;not null"`
	NextPayment        time.Time          `gorm:"not null;index"`
	Price              float64            `gorm:"not null"`
	Currency           string             `gorm:"type:text;not null"`
	CategoryID         snowflake.ID       `gorm:"index"`
	CategoryName       string             `gorm:"type:text"`
	Status             SubscriptionStatus `gorm:"type:text;not null;index"`
	AutoRenewal        bool               `gorm:"not null;default:true"`
	EnableNotification bool               `gorm:"not null;default:false"`
	NotifyDaysBefore   int                `gorm:"not null;default:0"`
	Metadata           datatypes.JSONMap  `gorm:"type:jsonb"`
	CancelledAt        *time.Time         `gorm:""`
	CreatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
