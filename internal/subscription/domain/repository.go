package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindDue(ctx context.Context, db *gorm.DB, due time.Time, afterID snowflake.ID, limit int) ([]Subscription, error)
	FindActiveByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Subscription, error)
	UpdateNextPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, nextPayment time.Time, updatedAt time.Time) error
	UpdatePrice(ctx context.Context, db *gorm.DB, id snowflake.ID, price float64, updatedAt time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status SubscriptionStatus, at time.Time) error
	Save(ctx context.Context, db *gorm.DB, subscription *Subscription) error
}
