package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/subtrackhq/subtrack/internal/billing/domain"
	"github.com/subtrackhq/subtrack/internal/clock"
	"github.com/subtrackhq/subtrack/internal/config"
	"github.com/subtrackhq/subtrack/internal/cyclemath"
	"github.com/subtrackhq/subtrack/internal/notification"
	"github.com/subtrackhq/subtrack/internal/observability/metrics"
	paymentdomain "github.com/subtrackhq/subtrack/internal/payment/domain"
	subscriptiondomain "github.com/subtrackhq/subtrack/internal/subscription/domain"
	"github.com/subtrackhq/subtrack/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchSize = 500

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Billing *config.BillingConfigHolder
	Sink    notification.Sink

	SubscriptionRepo subscriptiondomain.Repository
	PaymentRepo      paymentdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	billing *config.BillingConfigHolder
	sink    notification.Sink

	subscriptionrepo subscriptiondomain.Repository
	paymentrepo      paymentdomain.Repository
}

func NewService(p ServiceParam) billingdomain.Generator {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("billing.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Config,
		billing: p.Billing,
		sink:    p.Sink,

		subscriptionrepo: p.SubscriptionRepo,
		paymentrepo:      p.PaymentRepo,
	}
}

// RunDailySweep walks every active subscription whose due date has arrived
// and drives it forward: PAID cycles advance the due date, unbilled cycles
// get a pending record. Per-subscription failures are logged and counted,
// never returned; a non-nil error means the sweep itself could not run
// (FindDue failed or the context was cancelled).
func (s *Service) RunDailySweep(ctx context.Context) error {
	now := s.clock.Now()
	due := cyclemath.StartOfDay(now).AddDate(0, 0, 1)

	m := metrics.Billing()
	var cursor snowflake.ID

	for {
		subscriptions, err := s.subscriptionrepo.FindDue(ctx, s.db, due, cursor, sweepBatchSize)
		if err != nil {
			return err
		}
		if len(subscriptions) == 0 {
			return nil
		}

		for _, subscription := range subscriptions {
			if err := ctx.Err(); err != nil {
				return err
			}
			cursor = subscription.ID
			if err := s.sweepOne(ctx, subscription.ID, due); err != nil {
				m.IncSweepItemFailure()
				s.log.Warn("sweep item failed",
					zap.String("subscription_id", subscription.ID.String()),
					zap.Error(err),
				)
			}
		}

		if len(subscriptions) < sweepBatchSize {
			return nil
		}
	}
}

// sweepOne drives a single subscription up to the sweep horizon. Each
// GenerateOrAdvance call consumes at most one cycle boundary, so missed
// cycles are walked step by step until a pending record blocks the timeline
// or the due date moves past the horizon.
func (s *Service) sweepOne(ctx context.Context, subscriptionID snowflake.ID, due time.Time) error {
	itemCtx := ctx
	cancel := func() {}
	if s.cfg.SweepItemTimeout > 0 {
		itemCtx, cancel = context.WithTimeout(ctx, s.cfg.SweepItemTimeout)
	}
	defer cancel()

	maxSteps := s.billing.Current().MaxBackfillCycles
	if maxSteps <= 0 {
		maxSteps = 1
	}

	for step := 0; step < maxSteps; step++ {
		before, err := s.subscriptionrepo.FindByID(itemCtx, s.db, subscriptionID)
		if err != nil {
			return err
		}
		if before == nil || before.Status != subscriptiondomain.SubscriptionStatusActive {
			return nil
		}
		if !before.NextPayment.Before(due) {
			return nil
		}

		created, err := s.GenerateOrAdvance(itemCtx, subscriptionID.String())
		if err != nil {
			return err
		}
		if created {
			return nil
		}

		after, err := s.subscriptionrepo.FindByID(itemCtx, s.db, subscriptionID)
		if err != nil {
			return err
		}
		if after == nil || !after.NextPayment.After(before.NextPayment) {
			// A pending record already sits on the current boundary.
			return nil
		}
	}

	return nil
}

// GenerateOrAdvance processes one subscription's current cycle boundary
// inside a row-locked transaction. The unique (subscription_id, billing_date)
// index is the second line of defense: a racing writer loses the insert and
// treats the conflict as the bill already existing.
func (s *Service) GenerateOrAdvance(ctx context.Context, subscriptionID string) (bool, error) {
	id, err := snowflake.ParseString(subscriptionID)
	if err != nil {
		return false, billingdomain.ErrInvalidSubscription
	}

	now := s.clock.Now()
	var generated *paymentdomain.PaymentRecord
	var notifiable bool

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.subscriptionrepo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if subscription == nil {
			return billingdomain.ErrSubscriptionNotFound
		}
		if subscription.Status != subscriptiondomain.SubscriptionStatusActive {
			return nil
		}
		if subscription.NextPayment.After(now) && !cyclemath.SameDay(subscription.NextPayment, now) {
			return nil
		}

		existing, err := s.paymentrepo.FindBySubscriptionAndDate(ctx, tx, subscription.ID, subscription.NextPayment)
		if err != nil {
			return err
		}

		if existing != nil {
			if existing.Status == paymentdomain.PaymentStatusPaid {
				next := cyclemath.Advance(subscription.NextPayment, subscription.BillingCycle)
				return s.subscriptionrepo.UpdateNextPayment(ctx, tx, subscription.ID, next, now)
			}
			// Pending blocks the timeline; cancelled is terminal for the cycle.
			return nil
		}

		record := &paymentdomain.PaymentRecord{
			ID:             s.genID.Generate(),
			SubscriptionID: subscription.ID,
			UserID:         subscription.UserID,
			Amount:         subscription.Price,
			Currency:       subscription.Currency,
			BillingDate:    subscription.NextPayment,
			Status:         paymentdomain.PaymentStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.paymentrepo.Insert(ctx, tx, record); err != nil {
			if db.IsDuplicateKeyErr(err) {
				s.log.Debug("bill already generated by concurrent writer",
					zap.String("subscription_id", subscription.ID.String()),
					zap.Time("billing_date", subscription.NextPayment),
				)
				return nil
			}
			return err
		}

		generated = record
		notifiable = subscription.EnableNotification
		return nil
	})
	if err != nil {
		return false, err
	}
	if generated == nil {
		return false, nil
	}

	metrics.Billing().IncBillGenerated()
	if notifiable {
		s.notify(ctx, generated.UserID, notification.EventBillGenerated, map[string]any{
			"record_id":       generated.ID.String(),
			"subscription_id": generated.SubscriptionID.String(),
			"amount":          generated.Amount,
			"currency":        generated.Currency,
			"billing_date":    generated.BillingDate,
		})
	}

	return true, nil
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
