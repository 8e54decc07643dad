package service

import (
	"context"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/subtrackhq/subtrack/internal/billing/domain"
	categorydomain "github.com/subtrackhq/subtrack/internal/category/domain"
	"github.com/subtrackhq/subtrack/internal/clock"
	"github.com/subtrackhq/subtrack/internal/config"
	"github.com/subtrackhq/subtrack/internal/cyclemath"
	"github.com/subtrackhq/subtrack/internal/notification"
	"github.com/subtrackhq/subtrack/internal/observability/metrics"
	paymentdomain "github.com/subtrackhq/subtrack/internal/payment/domain"
	subscriptiondomain "github.com/subtrackhq/subtrack/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Billing   *config.BillingConfigHolder
	Sink      notification.Sink
	Generator billingdomain.Generator

	PaymentRepo      paymentdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	CategoryRepo     categorydomain.Repository
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	billing   *config.BillingConfigHolder
	sink      notification.Sink
	generator billingdomain.Generator

	paymentrepo      paymentdomain.Repository
	subscriptionrepo subscriptiondomain.Repository
	categoryrepo     categorydomain.Repository
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		clock:     p.Clock,
		billing:   p.Billing,
		sink:      p.Sink,
		generator: p.Generator,

		paymentrepo:      p.PaymentRepo,
		subscriptionrepo: p.SubscriptionRepo,
		categoryrepo:     p.CategoryRepo,
	}
}

// Confirm transitions a pending record to PAID. Inside one transaction it
// applies the actual amount/date, propagates price drift back to the
// subscription and advances the due date one cycle. Notification, catch-up
// and the budget check run after commit and never unwind the transition.
func (s *Service) Confirm(ctx context.Context, req paymentdomain.ConfirmPaymentRequest) (paymentdomain.PaymentRecord, error) {
	if req.ActualAmount != nil && *req.ActualAmount < 0 {
		return paymentdomain.PaymentRecord{}, paymentdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	var confirmed paymentdomain.PaymentRecord
	var subscription *subscriptiondomain.Subscription

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, sub, err := s.lockRecord(ctx, tx, req.UserID, req.RecordID)
		if err != nil {
			return err
		}
		if !record.IsPending() {
			return paymentdomain.ErrRecordNotPending
		}

		paidAt := now
		if req.ActualDate != nil {
			paidAt = *req.ActualDate
		}
		if req.ActualAmount != nil {
			record.Amount = *req.ActualAmount
		}
		record.Status = paymentdomain.PaymentStatusPaid
		record.PaidAt = &paidAt
		record.UpdatedAt = now
		if err := s.paymentrepo.Save(ctx, tx, record); err != nil {
			return err
		}

		if sub != nil && sub.Status == subscriptiondomain.SubscriptionStatusActive {
			epsilon := s.billing.Current().PriceDriftEpsilon
			if math.Abs(record.Amount-sub.Price) > epsilon {
				s.log.Info("price drift detected, updating subscription",
					zap.String("subscription_id", sub.ID.String()),
					zap.Float64("old_price", sub.Price),
					zap.Float64("new_price", record.Amount),
				)
				if err := s.subscriptionrepo.UpdatePrice(ctx, tx, sub.ID, record.Amount, now); err != nil {
					return err
				}
				sub.Price = record.Amount
			}

			if cyclemath.SameDay(sub.NextPayment, record.BillingDate) || !sub.NextPayment.After(record.BillingDate) {
				next := cyclemath.Advance(sub.NextPayment, sub.BillingCycle)
				if err := s.subscriptionrepo.UpdateNextPayment(ctx, tx, sub.ID, next, now); err != nil {
					return err
				}
				sub.NextPayment = next
			}
		}

		confirmed = *record
		subscription = sub
		return nil
	})
	if err != nil {
		return paymentdomain.PaymentRecord{}, err
	}

	s.notify(ctx, confirmed.UserID, notification.EventPaymentConfirmed, map[string]any{
		"record_id":       confirmed.ID.String(),
		"subscription_id": confirmed.SubscriptionID.String(),
		"amount":          confirmed.Amount,
		"currency":        confirmed.Currency,
	})

	s.catchUp(ctx, confirmed.SubscriptionID, now)

	if subscription != nil {
		s.checkBudget(ctx, subscription, now)
	}

	return confirmed, nil
}

// Cancel flips a pending record to CANCELLED and stops the subscription with
// it. Cancelling a bill is the user declining the renewal, so the timeline
// must not produce further cycles.
func (s *Service) Cancel(ctx context.Context, req paymentdomain.CancelRenewalRequest) (paymentdomain.PaymentRecord, error) {
	now := s.clock.Now()
	var cancelled paymentdomain.PaymentRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, sub, err := s.lockRecord(ctx, tx, req.UserID, req.RecordID)
		if err != nil {
			return err
		}
		if !record.IsPending() {
			return paymentdomain.ErrRecordNotPending
		}

		record.Status = paymentdomain.PaymentStatusCancelled
		record.UpdatedAt = now
		if err := s.paymentrepo.Save(ctx, tx, record); err != nil {
			return err
		}

		if sub != nil && sub.Status != subscriptiondomain.SubscriptionStatusCancelled {
			if err := s.subscriptionrepo.UpdateStatus(ctx, tx, sub.ID, subscriptiondomain.SubscriptionStatusCancelled, now); err != nil {
				return err
			}
		}

		cancelled = *record
		return nil
	})
	if err != nil {
		return paymentdomain.PaymentRecord{}, err
	}

	s.notify(ctx, cancelled.UserID, notification.EventRenewalCancelled, map[string]any{
		"record_id":       cancelled.ID.String(),
		"subscription_id": cancelled.SubscriptionID.String(),
	})

	return cancelled, nil
}

func (s *Service) ListPending(ctx context.Context, userID string) ([]paymentdomain.PaymentRecord, error) {
	uid, err := snowflake.ParseString(userID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidUser
	}
	return s.paymentrepo.FindPendingByUserID(ctx, s.db, uid)
}

// lockRecord loads the record and its subscription under row locks, in
// subscription-then-record order so confirm and the sweep cannot deadlock.
func (s *Service) lockRecord(ctx context.Context, tx *gorm.DB, userID, recordID string) (*paymentdomain.PaymentRecord, *subscriptiondomain.Subscription, error) {
	uid, err := snowflake.ParseString(userID)
	if err != nil {
		return nil, nil, paymentdomain.ErrInvalidUser
	}
	rid, err := snowflake.ParseString(recordID)
	if err != nil {
		return nil, nil, paymentdomain.ErrInvalidRecord
	}

	record, err := s.paymentrepo.FindByID(ctx, tx, rid)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, paymentdomain.ErrRecordNotFound
	}
	if record.UserID != uid {
		return nil, nil, paymentdomain.ErrForbidden
	}

	sub, err := s.subscriptionrepo.FindByIDForUpdate(ctx, tx, record.SubscriptionID)
	if err != nil {
		return nil, nil, err
	}

	record, err = s.paymentrepo.FindByIDForUpdate(ctx, tx, rid)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, paymentdomain.ErrRecordNotFound
	}

	return record, sub, nil
}

// catchUp nudges a backlogged subscription forward once. The nightly sweep
// converges deeper backlogs.
func (s *Service) catchUp(ctx context.Context, subscriptionID snowflake.ID, now time.Time) {
	sub, err := s.subscriptionrepo.FindByID(ctx, s.db, subscriptionID)
	if err != nil || sub == nil || sub.Status != subscriptiondomain.SubscriptionStatusActive {
		return
	}
	today := cyclemath.StartOfDay(now)
	if sub.NextPayment.After(today) && !cyclemath.SameDay(sub.NextPayment, today) {
		return
	}
	if _, err := s.generator.GenerateOrAdvance(ctx, subscriptionID.String()); err != nil {
		s.log.Warn("post-confirm catch-up failed",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Error(err),
		)
	}
}

// checkBudget sums this calendar month's PAID spend in the subscription's
// category. Amounts are summed as stored, across currencies; the alert is a
// heads-up, not an accounting figure.
func (s *Service) checkBudget(ctx context.Context, sub *subscriptiondomain.Subscription, now time.Time) {
	if sub.CategoryID == 0 {
		return
	}
	category, err := s.categoryrepo.FindByID(ctx, s.db, sub.CategoryID)
	if err != nil || category == nil || category.MonthlyBudget <= 0 {
		return
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	total, err := s.paymentrepo.SumPaidByCategoryAndRange(ctx, s.db, sub.UserID, category.ID, monthStart, monthEnd)
	if err != nil {
		s.log.Warn("budget check failed",
			zap.String("category_id", category.ID.String()),
			zap.Error(err),
		)
		return
	}

	if total > category.MonthlyBudget {
		s.notify(ctx, sub.UserID, notification.EventBudgetExceeded, map[string]any{
			"category_id":    category.ID.String(),
			"category_name":  category.Name,
			"monthly_budget": category.MonthlyBudget,
			"spent":          total,
		})
	}
}

func (s *Service) notify(ctx context.Context, userID snowflake.ID, event string, data map[string]any) {
	if err := s.sink.Notify(ctx, userID.String(), event, data); err != nil {
		metrics.Billing().IncNotificationFailure(event)
		s.log.Warn("notification delivery failed",
			zap.String("event", event),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}
