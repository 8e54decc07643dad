package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/subtrackhq/subtrack/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *paymentdomain.PaymentRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.PaymentRecord, error) {
	var record paymentdomain.PaymentRecord
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.PaymentRecord, error) {
	var record paymentdomain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_records WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) FindBySubscriptionAndDate(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, billingDate time.Time) (*paymentdomain.PaymentRecord, error) {
	var record paymentdomain.PaymentRecord
	err := db.WithContext(ctx).
		Where("subscription_id = ? AND billing_date = ?", subscriptionID, billingDate).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) FindPendingByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]paymentdomain.PaymentRecord, error) {
	var records []paymentdomain.PaymentRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND status IN (?, ?)", userID, paymentdomain.PaymentStatusPending, paymentdomain.PaymentStatusUnpaid).
		Order("billing_date ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) FindPaidByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID, from, to time.Time) ([]paymentdomain.PaymentRecord, error) {
	var records []paymentdomain.PaymentRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND billing_date >= ? AND billing_date < ?",
			userID, paymentdomain.PaymentStatusPaid, from, to).
		Order("billing_date ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) FindPaidBySubscriptions(ctx context.Context, db *gorm.DB, subscriptionIDs []snowflake.ID) ([]paymentdomain.PaymentRecord, error) {
	if len(subscriptionIDs) == 0 {
		return nil, nil
	}
	var records []paymentdomain.PaymentRecord
	err := db.WithContext(ctx).
		Where("subscription_id IN ? AND status = ?", subscriptionIDs, paymentdomain.PaymentStatusPaid).
		Order("subscription_id, billing_date ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) SumPaidByCategoryAndRange(ctx context.Context, db *gorm.DB, userID, categoryID snowflake.ID, from, to time.Time) (float64, error) {
	var total float64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(pr.amount), 0)
		 FROM payment_records pr
		 JOIN subscriptions s ON s.id = pr.subscription_id
		 WHERE pr.user_id = ?
		   AND s.category_id = ?
		   AND pr.status = ?
		   AND pr.billing_date >= ?
		   AND pr.billing_date < ?`,
		userID,
		categoryID,
		paymentdomain.PaymentStatusPaid,
		from,
		to,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, record *paymentdomain.PaymentRecord) error {
	return db.WithContext(ctx).Save(record).Error
}
