package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingservice "github.com/subtrackhq/subtrack/internal/billing/service"
	categorydomain "github.com/subtrackhq/subtrack/internal/category/domain"
	categoryrepo "github.com/subtrackhq/subtrack/internal/category/repository"
	"github.com/subtrackhq/subtrack/internal/clock"
	"github.com/subtrackhq/subtrack/internal/config"
	"github.com/subtrackhq/subtrack/internal/cyclemath"
	"github.com/subtrackhq/subtrack/internal/notification"
	paymentdomain "github.com/subtrackhq/subtrack/internal/payment/domain"
	paymentrepo "github.com/subtrackhq/subtrack/internal/payment/repository"
	subscriptiondomain "github.com/subtrackhq/subtrack/internal/subscription/domain"
	subscriptionrepo "github.com/subtrackhq/subtrack/internal/subscription/repository"
	"github.com/subtrackhq/subtrack/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingSink struct {
	events []string
}

func (s *recordingSink) Notify(ctx context.Context, userID, eventKey string, data map[string]any) error {
	s.events = append(s.events, eventKey)
	return nil
}

type testEnv struct {
	conn   *gorm.DB
	clock  *clock.FakeClock
	genID  *snowflake.Node
	sink   *recordingSink
	svc    subscriptiondomain.Service
	holder *config.BillingConfigHolder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&paymentdomain.PaymentRecord{},
		&categorydomain.Category{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"payment_records", "categories", "subscriptions"} {
		if err := conn.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}

	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	fc := clock.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	holder := &config.BillingConfigHolder{}
	holder.SetForTest(config.DefaultBillingConfig())
	sink := &recordingSink{}

	subs := subscriptionrepo.Provide()
	pays := paymentrepo.Provide()
	cats := categoryrepo.Provide()

	generator := billingservice.NewService(billingservice.ServiceParam{
		DB:               conn,
		Log:              zap.NewNop(),
		GenID:            node,
		Clock:            fc,
		Config:           config.Config{SweepItemTimeout: 5 * time.Second},
		Billing:          holder,
		Sink:             sink,
		SubscriptionRepo: subs,
		PaymentRepo:      pays,
	})

	svc := NewService(ServiceParam{
		DB:               conn,
		Log:              zap.NewNop(),
		GenID:            node,
		Clock:            fc,
		Billing:          holder,
		Sink:             sink,
		Generator:        generator,
		SubscriptionRepo: subs,
		PaymentRepo:      pays,
		CategoryRepo:     cats,
	})

	return &testEnv{
		conn:   conn,
		clock:  fc,
		genID:  node,
		sink:   sink,
		svc:    svc,
		holder: holder,
	}
}

func (e *testEnv) records(t *testing.T, subscriptionID snowflake.ID) []paymentdomain.PaymentRecord {
	t.Helper()
	var records []paymentdomain.PaymentRecord
	if err := e.conn.Where("subscription_id = ?", subscriptionID).Order("billing_date").Find(&records).Error; err != nil {
		t.Fatalf("load records: %v", err)
	}
	return records
}

func TestCreateBackfillsElapsedCycles(t *testing.T) {
	env := newTestEnv(t)
	userID := env.genID.Generate().String()
	today := cyclemath.StartOfDay(env.clock.Now())
	start := today.AddDate(0, -3, 0)

	created, err := env.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		UserID:       userID,
		Name:         "Cloud Storage",
		StartDate:    start,
		BillingCycle: "monthly",
		Price:        4.99,
		Currency:     "usd",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if !created.NextPayment.Equal(today) {
		t.Fatalf("next payment = %v, want %v", created.NextPayment, today)
	}
	if created.Currency != "USD" {
		t.Fatalf("currency = %s, want USD", created.Currency)
	}

	records := env.records(t, created.ID)
	// Three elapsed cycles backfilled as paid, plus today's pending bill.
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	for i, record := range records[:3] {
		if record.Status != paymentdomain.PaymentStatusPaid {
			t.Fatalf("record %d status = %s, want PAID", i, record.Status)
		}
		if !record.Backfilled {
			t.Fatalf("record %d not marked backfilled", i)
		}
		want := cyclemath.StartOfDay(start.AddDate(0, i, 0))
		if !record.BillingDate.Equal(want) {
			t.Fatalf("record %d billing date = %v, want %v", i, record.BillingDate, want)
		}
	}
	last := records[3]
	if last.Status != paymentdomain.PaymentStatusPending {
		t.Fatalf("today's record status = %s, want PENDING", last.Status)
	}
	if last.Backfilled {
		t.Fatal("today's record must not be backfilled")
	}
}

func TestCreateFutureStartHasNoRecords(t *testing.T) {
	env := newTestEnv(t)
	start := cyclemath.StartOfDay(env.clock.Now()).AddDate(0, 0, 10)

	created, err := env.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		UserID:       env.genID.Generate().String(),
		Name:         "News",
		StartDate:    start,
		BillingCycle: "monthly",
		Price:        3,
		Currency:     "EUR",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.NextPayment.Equal(start) {
		t.Fatalf("next payment = %v, want %v", created.NextPayment, start)
	}
	if got := env.records(t, created.ID); len(got) != 0 {
		t.Fatalf("got %d records, want 0", len(got))
	}
}

func TestCreateUnknownCycleDefaultsToMonthly(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		UserID:       env.genID.Generate().String(),
		Name:         "Gym",
		StartDate:    env.clock.Now(),
		BillingCycle: "fortnightly",
		Price:        20,
		Currency:     "USD",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.BillingCycle != cyclemath.Monthly {
		t.Fatalf("cycle = %s, want monthly", created.BillingCycle)
	}
}

func TestCreateCapsBackfill(t *testing.T) {
	env := newTestEnv(t)
	env.holder.SetForTest(config.BillingConfig{MaxBackfillCycles: 5})
	start := cyclemath.StartOfDay(env.clock.Now()).AddDate(0, -24, 0)

	created, err := env.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		UserID:       env.genID.Generate().String(),
		Name:         "Archive",
		StartDate:    start,
		BillingCycle: "monthly",
		Price:        1,
		Currency:     "USD",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var backfilled int64
	if err := env.conn.Model(&paymentdomain.PaymentRecord{}).
		Where("subscription_id = ? AND backfilled = ?", created.ID, true).
		Count(&backfilled).Error; err != nil {
		t.Fatalf("count backfilled: %v", err)
	}
	if backfilled != 5 {
		t.Fatalf("backfilled = %d, want 5", backfilled)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Now()

	tests := []struct {
		name string
		req  subscriptiondomain.CreateSubscriptionRequest
		want error
	}{
		{"bad user", subscriptiondomain.CreateSubscriptionRequest{UserID: "nope", Name: "x", StartDate: now, Price: 1, Currency: "USD"}, subscriptiondomain.ErrInvalidUser},
		{"empty name", subscriptiondomain.CreateSubscriptionRequest{UserID: "1", Name: " ", StartDate: now, Price: 1, Currency: "USD"}, subscriptiondomain.ErrInvalidName},
		{"negative price", subscriptiondomain.CreateSubscriptionRequest{UserID: "1", Name: "x", StartDate: now, Price: -1, Currency: "USD"}, subscriptiondomain.ErrInvalidPrice},
		{"no currency", subscriptiondomain.CreateSubscriptionRequest{UserID: "1", Name: "x", StartDate: now, Price: 1}, subscriptiondomain.ErrInvalidCurrency},
		{"no start", subscriptiondomain.CreateSubscriptionRequest{UserID: "1", Name: "x", Price: 1, Currency: "USD"}, subscriptiondomain.ErrInvalidStartDate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.Create(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestUpdateCycleRecomputesNextPayment(t *testing.T) {
	env := newTestEnv(t)
	today := cyclemath.StartOfDay(env.clock.Now())
	created, err := env.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		UserID:       env.genID.Generate().String(),
		Name:         "VPN",
		StartDate:    today.AddDate(0, 0, -10),
		BillingCycle: "monthly",
		Price:        5,
		Currency:     "USD",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	weekly := "weekly"
	updated, err := env.svc.Update(context.Background(), subscriptiondomain.UpdateSubscriptionRequest{
		SubscriptionID: created.ID.String(),
		UserID:         created.UserID.String(),
		BillingCycle:   &weekly,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if updated.BillingCycle != cyclemath.Weekly {
		t.Fatalf("cycle = %s, want weekly", updated.BillingCycle)
	}
	// Start was 10 days back; weekly boundaries land at +7, +14. The first
	// not before today is +14, i.e. four days out.
	want := today.AddDate(0, 0, 4)
	if !updated.NextPayment.Equal(want) {
		t.Fatalf("next payment = %v, want %v", updated.NextPayment, want)
	}
}

func TestPauseBlocksGenerationResumeRestores(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		UserID:       env.genID.Generate().String(),
		Name:         "Games",
		StartDate:    env.clock.Now().AddDate(0, 0, 1),
		BillingCycle: "daily",
		Price:        2,
		Currency:     "USD",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := env.svc.Pause(context.Background(), created.UserID.String(), created.ID.String()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := env.svc.Pause(context.Background(), created.UserID.String(), created.ID.String()); !errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
		t.Fatalf("second pause err = %v, want ErrInvalidTransition", err)
	}
	if err := env.svc.Resume(context.Background(), created.UserID.String(), created.ID.String()); err != nil {
		t.Fatalf("resume: %v", err)
	}

	got, err := env.svc.GetByID(context.Background(), created.UserID.String(), created.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != subscriptiondomain.SubscriptionStatusActive {
		t.Fatalf("status = %s, want ACTIVE", got.Status)
	}
}

func TestCancelStopsFurtherUpdates(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		UserID:       env.genID.Generate().String(),
		Name:         "Box",
		StartDate:    env.clock.Now().AddDate(0, 0, 1),
		BillingCycle: "monthly",
		Price:        7,
		Currency:     "USD",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := env.svc.Cancel(context.Background(), created.UserID.String(), created.ID.String()); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	name := "Renamed"
	_, err = env.svc.Update(context.Background(), subscriptiondomain.UpdateSubscriptionRequest{
		SubscriptionID: created.ID.String(),
		UserID:         created.UserID.String(),
		Name:           &name,
	})
	if !errors.Is(err, subscriptiondomain.ErrSubscriptionCancelled) {
		t.Fatalf("err = %v, want ErrSubscriptionCancelled", err)
	}
}

func TestGetByIDForbiddenForOtherUser(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		UserID:       env.genID.Generate().String(),
		Name:         "Mail",
		StartDate:    env.clock.Now(),
		BillingCycle: "monthly",
		Price:        1,
		Currency:     "USD",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.svc.GetByID(context.Background(), env.genID.Generate().String(), created.ID.String())
	if !errors.Is(err, subscriptiondomain.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestListPaginates(t *testing.T) {
	env := newTestEnv(t)
	userID := env.genID.Generate().String()

	for i := 0; i < 5; i++ {
		if _, err := env.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
			UserID:       userID,
			Name:         "Sub",
			StartDate:    env.clock.Now().AddDate(0, 0, 1),
			BillingCycle: "monthly",
			Price:        1,
			Currency:     "USD",
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		env.clock.Advance(time.Second)
	}

	resp, err := env.svc.List(context.Background(), subscriptiondomain.ListSubscriptionRequest{
		UserID:   userID,
		PageSize: 3,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Subscriptions) != 3 {
		t.Fatalf("page 1 = %d rows, want 3", len(resp.Subscriptions))
	}
	if !resp.HasMore || resp.NextPageToken == "" {
		t.Fatalf("page info = %+v, want more pages", resp.PageInfo)
	}

	resp2, err := env.svc.List(context.Background(), subscriptiondomain.ListSubscriptionRequest{
		UserID:    userID,
		PageSize:  3,
		PageToken: resp.NextPageToken,
	})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(resp2.Subscriptions) != 2 {
		t.Fatalf("page 2 = %d rows, want 2", len(resp2.Subscriptions))
	}
	if resp2.HasMore {
		t.Fatal("page 2 must be the last page")
	}

	if _, err := env.svc.List(context.Background(), subscriptiondomain.ListSubscriptionRequest{UserID: "nope"}); !errors.Is(err, subscriptiondomain.ErrInvalidUser) {
		t.Fatalf("err = %v, want ErrInvalidUser", err)
	}
}

func TestCreateEmitsNotification(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		UserID:       env.genID.Generate().String(),
		Name:         "Radio",
		StartDate:    env.clock.Now(),
		BillingCycle: "monthly",
		Price:        2,
		Currency:     "USD",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	found := false
	for _, event := range env.sink.events {
		if event == notification.EventSubscriptionCreated {
			found = true
		}
	}
	if !found {
		t.Fatalf("events = %v, want subscription.created", env.sink.events)
	}
}
