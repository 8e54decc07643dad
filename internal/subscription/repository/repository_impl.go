package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/subtrackhq/subtrack/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

// FindDue pages by id so sweeps visit each due subscription exactly once
// even when a page of them stays due after processing.
func (r *repo) FindDue(ctx context.Context, db *gorm.DB, due time.Time, afterID snowflake.ID, limit int) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	stmt := db.WithContext(ctx).
		Where("status = ? AND next_payment < ? AND id > ?", subscriptiondomain.SubscriptionStatusActive, due, afterID).
		Order("id ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) FindActiveByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, subscriptiondomain.SubscriptionStatusActive).
		Order("id").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) UpdateNextPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, nextPayment time.Time, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET next_payment = ?, updated_at = ? WHERE id = ?`,
		nextPayment,
		updatedAt,
		id,
	).Error
}

func (r *repo) UpdatePrice(ctx context.Context, db *gorm.DB, id snowflake.ID, price float64, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET price = ?, updated_at = ? WHERE id = ?`,
		price,
		updatedAt,
		id,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status subscriptiondomain.SubscriptionStatus, at time.Time) error {
	stmt := `UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ?`
	if status == subscriptiondomain.SubscriptionStatusCancelled {
		return db.WithContext(ctx).Exec(
			`UPDATE subscriptions SET status = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`,
			status,
			at,
			at,
			id,
		).Error
	}
	return db.WithContext(ctx).Exec(stmt, status, at, id).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Save(subscription).Error
}
