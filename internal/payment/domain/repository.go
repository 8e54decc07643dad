package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentRecord, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentRecord, error)
	FindBySubscriptionAndDate(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, billingDate time.Time) (*PaymentRecord, error)
	FindPendingByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]PaymentRecord, error)
	FindPaidByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID, from, to time.Time) ([]PaymentRecord, error)
	FindPaidBySubscriptions(ctx context.Context, db *gorm.DB, subscriptionIDs []snowflake.ID) ([]PaymentRecord, error)
	SumPaidByCategoryAndRange(ctx context.Context, db *gorm.DB, userID, categoryID snowflake.ID, from, to time.Time) (float64, error)
	Save(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
}
