package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/subtrackhq/subtrack/internal/analytics/domain"
	"github.com/subtrackhq/subtrack/internal/clock"
	"github.com/subtrackhq/subtrack/internal/config"
	"github.com/subtrackhq/subtrack/internal/currency"
	"github.com/subtrackhq/subtrack/internal/cyclemath"
	paymentdomain "github.com/subtrackhq/subtrack/internal/payment/domain"
	subscriptiondomain "github.com/subtrackhq/subtrack/internal/subscription/domain"
	"github.com/subtrackhq/subtrack/pkg/db/option"
	"github.com/subtrackhq/subtrack/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const uncategorized = "Uncategorized"

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Config    config.Config
	Billing   *config.BillingConfigHolder
	Converter currency.Converter

	SubscriptionRepo subscriptiondomain.Repository
	PaymentRepo      paymentdomain.Repository
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	cfg       config.Config
	billing   *config.BillingConfigHolder
	converter currency.Converter

	subscriptionrepo  subscriptiondomain.Repository
	paymentrepo       paymentdomain.Repository
	subscriptionstore repository.Repository[subscriptiondomain.Subscription]
}

func NewService(p ServiceParam) analyticsdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("analytics.service"),
		clock:     p.Clock,
		cfg:       p.Config,
		billing:   p.Billing,
		converter: p.Converter,

		subscriptionrepo:  p.SubscriptionRepo,
		paymentrepo:       p.PaymentRepo,
		subscriptionstore: repository.ProvideStore[subscriptiondomain.Subscription](p.DB),
	}
}

// Overview recomputes every analytics view from current rows. No caching:
// the views must reflect confirmations and cancellations immediately.
func (s *Service) Overview(ctx context.Context, req analyticsdomain.OverviewRequest) (analyticsdomain.Overview, error) {
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		return analyticsdomain.Overview{}, analyticsdomain.ErrInvalidUser
	}

	excluded := make(map[snowflake.ID]bool, len(req.ExcludedIDs))
	for _, raw := range req.ExcludedIDs {
		if id, err := snowflake.ParseString(raw); err == nil {
			excluded[id] = true
		}
	}

	now := s.clock.Now()
	base := s.baseCurrency()

	active, err := s.subscriptionrepo.FindActiveByUserID(ctx, s.db, userID)
	if err != nil {
		return analyticsdomain.Overview{}, err
	}

	yearStart := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	paidThisYear, err := s.paymentrepo.FindPaidByUserID(ctx, s.db, userID, yearStart, yearStart.AddDate(1, 0, 0))
	if err != nil {
		return analyticsdomain.Overview{}, err
	}

	heatmap, ytd := s.buildHeatmap(paidThisYear, now, base)
	projection, projectedTotal := s.buildProjection(active, excluded, now, base)
	nodes, links := s.buildSankey(active, excluded, base)
	anomalies, err := s.detectAnomalies(ctx, userID)
	if err != nil {
		return analyticsdomain.Overview{}, err
	}

	return analyticsdomain.Overview{
		Heatmap:        heatmap,
		YearToDate:     ytd,
		Projection:     projection,
		ProjectedTotal: projectedTotal,
		SankeyNodes:    nodes,
		SankeyLinks:    links,
		Anomalies:      anomalies,
		Currency:       base,
	}, nil
}

func (s *Service) buildHeatmap(paid []paymentdomain.PaymentRecord, now time.Time, base string) ([]analyticsdomain.HeatmapCell, float64) {
	counts := make(map[string]int)
	var ytd float64
	for _, record := range paid {
		if record.BillingDate.After(now) {
			continue
		}
		day := cyclemath.StartOfDay(record.BillingDate).Format("2006-01-02")
		counts[day]++
		ytd += s.convert(record.Amount, record.Currency, base)
	}

	days := make([]string, 0, len(counts))
	for day := range counts {
		days = append(days, day)
	}
	sort.Strings(days)

	cells := make([]analyticsdomain.HeatmapCell, 0, len(days))
	for _, day := range days {
		cells = append(cells, analyticsdomain.HeatmapCell{Date: day, Count: counts[day]})
	}
	return cells, ytd
}

// buildProjection walks each active subscription's future boundaries across a
// rolling monthly horizon, charging the converted price into every month a
// boundary lands in. Walks start at the due date, or today when the
// subscription is backlogged, so overdue cycles are not projected twice.
func (s *Service) buildProjection(active []subscriptiondomain.Subscription, excluded map[snowflake.ID]bool, now time.Time, base string) ([]analyticsdomain.ProjectionBucket, float64) {
	months := s.billing.Current().ProjectionMonths
	if months <= 0 {
		months = 12
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	horizon := monthStart.AddDate(0, months, 0)
	today := cyclemath.StartOfDay(now)

	buckets := make([]analyticsdomain.ProjectionBucket, months)
	index := make(map[string]int, months)
	for i := range buckets {
		month := monthStart.AddDate(0, i, 0).Format("2006-01")
		buckets[i] = analyticsdomain.ProjectionBucket{Month: month}
		index[month] = i
	}

	var total float64
	for _, sub := range active {
		if excluded[sub.ID] {
			continue
		}
		boundary := sub.NextPayment
		if boundary.Before(today) {
			boundary = today
		}
		amount := s.convert(sub.Price, sub.Currency, base)
		for boundary.Before(horizon) {
			if i, ok := index[boundary.Format("2006-01")]; ok {
				buckets[i].Total += amount
				total += amount
			}
			boundary = cyclemath.Advance(boundary, sub.BillingCycle)
		}
	}

	return buckets, total
}

func (s *Service) buildSankey(active []subscriptiondomain.Subscription, excluded map[snowflake.ID]bool, base string) ([]analyticsdomain.SankeyNode, []analyticsdomain.SankeyLink) {
	seen := make(map[string]bool)
	var nodes []analyticsdomain.SankeyNode
	addNode := func(name string) {
		if !seen[name] {
			seen[name] = true
			nodes = append(nodes, analyticsdomain.SankeyNode{Name: name})
		}
	}

	var links []analyticsdomain.SankeyLink
	for _, sub := range active {
		if excluded[sub.ID] {
			continue
		}
		category := sub.CategoryName
		if category == "" {
			category = uncategorized
		}
		addNode(category)
		addNode(sub.Name)
		monthly := cyclemath.MonthlyEquivalent(s.convert(sub.Price, sub.Currency, base), sub.BillingCycle)
		links = append(links, analyticsdomain.SankeyLink{
			Source: category,
			Target: sub.Name,
			Value:  monthly,
		})
	}

	return nodes, links
}

// detectAnomalies scans each subscription's paid history in billing order and
// reports every adjacent strict amount increase.
func (s *Service) detectAnomalies(ctx context.Context, userID snowflake.ID) ([]analyticsdomain.AnomalyEvent, error) {
	subscriptions, err := s.allSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(subscriptions) == 0 {
		return nil, nil
	}

	ids := make([]snowflake.ID, 0, len(subscriptions))
	names := make(map[snowflake.ID]string, len(subscriptions))
	for _, sub := range subscriptions {
		ids = append(ids, sub.ID)
		names[sub.ID] = sub.Name
	}

	paid, err := s.paymentrepo.FindPaidBySubscriptions(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	bySubscription := make(map[snowflake.ID][]paymentdomain.PaymentRecord)
	for _, record := range paid {
		bySubscription[record.SubscriptionID] = append(bySubscription[record.SubscriptionID], record)
	}

	var anomalies []analyticsdomain.AnomalyEvent
	for _, id := range ids {
		history := bySubscription[id]
		sort.Slice(history, func(i, j int) bool {
			return history[i].BillingDate.Before(history[j].BillingDate)
		})
		for i := 1; i < len(history); i++ {
			prev, curr := history[i-1], history[i]
			if curr.Amount > prev.Amount {
				anomalies = append(anomalies, analyticsdomain.AnomalyEvent{
					Type:             analyticsdomain.AnomalyPriceIncrease,
					SubscriptionID:   id.String(),
					SubscriptionName: names[id],
					OldAmount:        prev.Amount,
					NewAmount:        curr.Amount,
					Currency:         curr.Currency,
					ObservedAt:       curr.BillingDate,
				})
			}
		}
	}

	return anomalies, nil
}

func (s *Service) allSubscriptions(ctx context.Context, userID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	rows, err := s.subscriptionstore.Find(ctx,
		&subscriptiondomain.Subscription{UserID: userID},
		option.WithSortBy("id"),
	)
	if err != nil {
		return nil, err
	}
	subscriptions := make([]subscriptiondomain.Subscription, 0, len(rows))
	for _, row := range rows {
		subscriptions = append(subscriptions, *row)
	}
	return subscriptions, nil
}

// convert falls back to the raw amount when the converter cannot help.
func (s *Service) convert(amount float64, from, to string) float64 {
	converted, err := s.converter.Convert(amount, from, to)
	if err != nil {
		return amount
	}
	return converted
}

func (s *Service) baseCurrency() string {
	if base := s.billing.Current().BaseCurrency; base != "" {
		return base
	}
	return s.cfg.BaseCurrency
}
