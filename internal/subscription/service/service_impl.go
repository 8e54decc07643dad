package service

import (
	"context"
	"strings"
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
	"github.com/subtrackhq/subtrack/pkg/db"
	"github.com/subtrackhq/subtrack/pkg/db/option"
	"github.com/subtrackhq/subtrack/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Columns callers may sort the listing by. The cursor token still orders on
// created_at, so alternate sorts only apply to unpaginated first pages.
var listSortable = map[string]bool{
	"created_at":   true,
	"name":         true,
	"next_payment": true,
	"price":        true,
}

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Billing   *config.BillingConfigHolder
	Sink      notification.Sink
	Generator billingdomain.Generator

	SubscriptionRepo subscriptiondomain.Repository
	PaymentRepo      paymentdomain.Repository
	CategoryRepo     categorydomain.Repository
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	billing   *config.BillingConfigHolder
	sink      notification.Sink
	generator billingdomain.Generator

	subscriptionrepo subscriptiondomain.Repository
	paymentrepo      paymentdomain.Repository
	categoryrepo     categorydomain.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("subscription.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		billing:   p.Billing,
		sink:      p.Sink,
		generator: p.Generator,

		subscriptionrepo: p.SubscriptionRepo,
		paymentrepo:      p.PaymentRepo,
		categoryrepo:     p.CategoryRepo,
	}
}

// Create registers a subscription and materializes its billing timeline.
// Cycles that already elapsed before today are backfilled as PAID history;
// the first unconsumed boundary becomes NextPayment and, when it is already
// due, a pending bill is generated immediately.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidUser
	}
	if strings.TrimSpace(req.Name) == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidName
	}
	if req.Price < 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidCurrency
	}
	if req.StartDate.IsZero() {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidStartDate
	}

	now := s.clock.Now()
	today := cyclemath.StartOfDay(now)
	start := cyclemath.StartOfDay(req.StartDate)
	cycle := cyclemath.Normalize(req.BillingCycle)

	var categoryID snowflake.ID
	var categoryName string
	if strings.TrimSpace(req.CategoryID) != "" {
		category, err := s.resolveCategory(ctx, userID, req.CategoryID)
		if err != nil {
			return subscriptiondomain.Subscription{}, err
		}
		categoryID = category.ID
		categoryName = category.Name
	}

	// Walk boundaries from the start date; everything strictly before today
	// already happened.
	var elapsed []time.Time
	next := start
	for next.Before(today) {
		elapsed = append(elapsed, next)
		next = cyclemath.Advance(next, cycle)
	}

	autoRenewal := true
	if req.AutoRenewal != nil {
		autoRenewal = *req.AutoRenewal
	}

	subscription := subscriptiondomain.Subscription{
		ID:                 s.genID.Generate(),
		UserID:             userID,
		Name:               strings.TrimSpace(req.Name),
		StartDate:          start,
		BillingCycle:       cycle,
		NextPayment:        next,
		Price:              req.Price,
		Currency:           currency,
		CategoryID:         categoryID,
		CategoryName:       categoryName,
		Status:             subscriptiondomain.SubscriptionStatusActive,
		AutoRenewal:        autoRenewal,
		EnableNotification: req.EnableNotification,
		NotifyDaysBefore:   req.NotifyDaysBefore,
		Metadata:           req.Metadata,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.subscriptionrepo.Insert(ctx, s.db, &subscription); err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.backfillHistory(ctx, subscription, elapsed, now)

	s.notify(ctx, userID, notification.EventSubscriptionCreated, map[string]any{
		"subscription_id": subscription.ID.String(),
		"name":            subscription.Name,
		"next_payment":    subscription.NextPayment,
	})

	// First boundary may land on today.
	if cyclemath.SameDay(subscription.NextPayment, today) {
		if _, err := s.generator.GenerateOrAdvance(ctx, subscription.ID.String()); err != nil {
			s.log.Warn("initial bill generation failed",
				zap.String("subscription_id", subscription.ID.String()),
				zap.Error(err),
			)
		}
	}

	return subscription, nil
}

// backfillHistory records elapsed cycles as PAID. History is best effort:
// a failed insert is logged and skipped, and the per-subscription cycle cap
// keeps pathological start dates from flooding the table.
func (s *Service) backfillHistory(ctx context.Context, subscription subscriptiondomain.Subscription, elapsed []time.Time, now time.Time) {
	maxCycles := s.billing.Current().MaxBackfillCycles
	if len(elapsed) > maxCycles {
		s.log.Warn("backfill capped, keeping most recent cycles",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Int("elapsed_cycles", len(elapsed)),
			zap.Int("max_cycles", maxCycles),
		)
		elapsed = elapsed[len(elapsed)-maxCycles:]
	}

	m := metrics.Billing()
	for _, billingDate := range elapsed {
		paidAt := billingDate
		record := paymentdomain.PaymentRecord{
			ID:             s.genID.Generate(),
			SubscriptionID: subscription.ID,
			UserID:         subscription.UserID,
			Amount:         subscription.Price,
			Currency:       subscription.Currency,
			BillingDate:    billingDate,
			Status:         paymentdomain.PaymentStatusPaid,
			Backfilled:     true,
			PaidAt:         &paidAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.paymentrepo.Insert(ctx, s.db, &record); err != nil {
			if db.IsDuplicateKeyErr(err) {
				continue
			}
			s.log.Warn("backfill insert failed",
				zap.String("subscription_id", subscription.ID.String()),
				zap.Time("billing_date", billingDate),
				zap.Error(err),
			)
			continue
		}
		m.IncBackfillRecord()
	}
}

func (s *Service) Update(ctx context.Context, req subscriptiondomain.UpdateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	subscription, err := s.authorize(ctx, req.UserID, req.SubscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription.Status == subscriptiondomain.SubscriptionStatusCancelled {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionCancelled
	}

	now := s.clock.Now()

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidName
		}
		subscription.Name = strings.TrimSpace(*req.Name)
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidPrice
		}
		subscription.Price = *req.Price
	}
	if req.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*req.Currency))
		if currency == "" {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidCurrency
		}
		subscription.Currency = currency
	}
	if req.CategoryID != nil {
		if strings.TrimSpace(*req.CategoryID) == "" {
			subscription.CategoryID = 0
			subscription.CategoryName = ""
		} else {
			category, err := s.resolveCategory(ctx, subscription.UserID, *req.CategoryID)
			if err != nil {
				return subscriptiondomain.Subscription{}, err
			}
			subscription.CategoryID = category.ID
			subscription.CategoryName = category.Name
		}
	}
	if req.EnableNotification != nil {
		subscription.EnableNotification = *req.EnableNotification
	}
	if req.NotifyDaysBefore != nil {
		subscription.NotifyDaysBefore = *req.NotifyDaysBefore
	}

	rescheduled := false
	if req.BillingCycle != nil {
		subscription.BillingCycle = cyclemath.Normalize(*req.BillingCycle)
		rescheduled = true
	}
	if req.StartDate != nil {
		if req.StartDate.IsZero() {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidStartDate
		}
		subscription.StartDate = cyclemath.StartOfDay(*req.StartDate)
		rescheduled = true
	}
	if rescheduled {
		// Recompute the due date on the new schedule; history stays as
		// recorded, the timeline only changes going forward.
		today := cyclemath.StartOfDay(now)
		next := subscription.StartDate
		for next.Before(today) {
			next = cyclemath.Advance(next, subscription.BillingCycle)
		}
		subscription.NextPayment = next
	}

	subscription.UpdatedAt = now
	if err := s.subscriptionrepo.Save(ctx, s.db, subscription); err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	return *subscription, nil
}

func (s *Service) GetByID(ctx context.Context, userID, subscriptionID string) (subscriptiondomain.Subscription, error) {
	subscription, err := s.authorize(ctx, userID, subscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	return *subscription, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListSubscriptionRequest) (subscriptiondomain.ListSubscriptionResponse, error) {
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidUser
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}

	stmt := s.db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("user_id = ?", userID)

	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		stmt = option.ApplyOperator(option.Condition{Field: "status", Value: status}).Apply(stmt)
	}

	stmt = option.ApplyPagination(pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	}).Apply(stmt)

	sortClause := option.WithQuerySortBy(req.SortBy, req.SortOrder, listSortable)
	if sortClause == "" {
		sortClause = "created_at DESC"
	}
	stmt = option.WithSortBy(sortClause).Apply(stmt)

	var rows []*subscriptiondomain.Subscription
	if err := stmt.Find(&rows).Error; err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(rows, pageSize, func(row *subscriptiondomain.Subscription) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        row.ID.String(),
			CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	if len(rows) > int(pageSize) {
		rows = rows[:pageSize]
	}
	subscriptions := make([]subscriptiondomain.Subscription, 0, len(rows))
	for _, row := range rows {
		subscriptions = append(subscriptions, *row)
	}

	return subscriptiondomain.ListSubscriptionResponse{
		PageInfo:      *pageInfo,
		Subscriptions: subscriptions,
	}, nil
}

func (s *Service) Pause(ctx context.Context, userID, subscriptionID string) error {
	return s.transition(ctx, userID, subscriptionID,
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusPaused,
	)
}

func (s *Service) Resume(ctx context.Context, userID, subscriptionID string) error {
	return s.transition(ctx, userID, subscriptionID,
		subscriptiondomain.SubscriptionStatusPaused,
		subscriptiondomain.SubscriptionStatusActive,
	)
}

// Cancel stops future billing. History and any pending record stay untouched;
// cancelling an individual bill goes through the payment flow instead.
func (s *Service) Cancel(ctx context.Context, userID, subscriptionID string) error {
	subscription, err := s.authorize(ctx, userID, subscriptionID)
	if err != nil {
		return err
	}
	if subscription.Status == subscriptiondomain.SubscriptionStatusCancelled {
		return subscriptiondomain.ErrInvalidTransition
	}
	return s.subscriptionrepo.UpdateStatus(ctx, s.db, subscription.ID,
		subscriptiondomain.SubscriptionStatusCancelled, s.clock.Now())
}

func (s *Service) transition(ctx context.Context, userID, subscriptionID string, from, to subscriptiondomain.SubscriptionStatus) error {
	subscription, err := s.authorize(ctx, userID, subscriptionID)
	if err != nil {
		return err
	}
	if subscription.Status != from {
		return subscriptiondomain.ErrInvalidTransition
	}
	return s.subscriptionrepo.UpdateStatus(ctx, s.db, subscription.ID, to, s.clock.Now())
}

func (s *Service) authorize(ctx context.Context, userID, subscriptionID string) (*subscriptiondomain.Subscription, error) {
	uid, err := snowflake.ParseString(userID)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidUser
	}
	sid, err := snowflake.ParseString(subscriptionID)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}

	subscription, err := s.subscriptionrepo.FindByID(ctx, s.db, sid)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	if subscription.UserID != uid {
		return nil, subscriptiondomain.ErrForbidden
	}
	return subscription, nil
}

func (s *Service) resolveCategory(ctx context.Context, userID snowflake.ID, categoryID string) (*categorydomain.Category, error) {
	cid, err := snowflake.ParseString(categoryID)
	if err != nil {
		return nil, categorydomain.ErrInvalidCategory
	}
	category, err := s.categoryrepo.FindByID(ctx, s.db, cid)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, categorydomain.ErrCategoryNotFound
	}
	if category.UserID != userID {
		return nil, subscriptiondomain.ErrForbidden
	}
	return category, nil
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
