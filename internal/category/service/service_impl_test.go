package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	categorydomain "github.com/subtrackhq/subtrack/internal/category/domain"
	categoryrepo "github.com/subtrackhq/subtrack/internal/category/repository"
	"github.com/subtrackhq/subtrack/internal/clock"
	"github.com/subtrackhq/subtrack/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	conn   *gorm.DB
	genID  *snowflake.Node
	svc    categorydomain.Service
	userID snowflake.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&categorydomain.Category{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := conn.Exec("DELETE FROM categories").Error; err != nil {
		t.Fatalf("clean categories: %v", err)
	}

	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	svc := NewService(ServiceParam{
		DB:           conn,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clock.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)),
		CategoryRepo: categoryrepo.Provide(),
	})

	return &testEnv{
		conn:   conn,
		genID:  node,
		svc:    svc,
		userID: node.Generate(),
	}
}

func TestCreateAndListCategories(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.svc.Create(context.Background(), categorydomain.CreateCategoryRequest{
		UserID:        env.userID.String(),
		Name:          "  Entertainment ",
		MonthlyBudget: 50,
		Currency:      "usd",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Name != "Entertainment" {
		t.Fatalf("name = %q, want trimmed", created.Name)
	}
	if created.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", created.Currency)
	}

	if _, err := env.svc.Create(context.Background(), categorydomain.CreateCategoryRequest{
		UserID: env.genID.Generate().String(),
		Name:   "Utilities",
	}); err != nil {
		t.Fatalf("create for other user: %v", err)
	}

	categories, err := env.svc.List(context.Background(), env.userID.String())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(categories) != 1 {
		t.Fatalf("got %d categories, want 1", len(categories))
	}
	if categories[0].ID != created.ID {
		t.Fatalf("listed %s, want %s", categories[0].ID, created.ID)
	}
}

func TestCreateCategoryValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  categorydomain.CreateCategoryRequest
		want error
	}{
		{"bad user", categorydomain.CreateCategoryRequest{UserID: "nope", Name: "x"}, categorydomain.ErrInvalidUser},
		{"empty name", categorydomain.CreateCategoryRequest{UserID: env.userID.String(), Name: "  "}, categorydomain.ErrInvalidName},
		{"negative budget", categorydomain.CreateCategoryRequest{UserID: env.userID.String(), Name: "x", MonthlyBudget: -1}, categorydomain.ErrInvalidBudget},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.Create(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestUpdateCategoryPatchesBudget(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.svc.Create(context.Background(), categorydomain.CreateCategoryRequest{
		UserID:        env.userID.String(),
		Name:          "Software",
		MonthlyBudget: 30,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	budget := 75.0
	updated, err := env.svc.Update(context.Background(), categorydomain.UpdateCategoryRequest{
		UserID:        env.userID.String(),
		CategoryID:    created.ID.String(),
		MonthlyBudget: &budget,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.MonthlyBudget != 75 {
		t.Fatalf("budget = %v, want 75", updated.MonthlyBudget)
	}
	if updated.Name != "Software" {
		t.Fatalf("name = %q, patch must not touch it", updated.Name)
	}
}

func TestUpdateCategoryForbiddenForOtherUser(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.svc.Create(context.Background(), categorydomain.CreateCategoryRequest{
		UserID: env.userID.String(),
		Name:   "Fitness",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Hijacked"
	_, err = env.svc.Update(context.Background(), categorydomain.UpdateCategoryRequest{
		UserID:     env.genID.Generate().String(),
		CategoryID: created.ID.String(),
		Name:       &name,
	})
	if !errors.Is(err, categorydomain.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestUpdateCategoryUnknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Update(context.Background(), categorydomain.UpdateCategoryRequest{
		UserID:     env.userID.String(),
		CategoryID: env.genID.Generate().String(),
	})
	if !errors.Is(err, categorydomain.ErrCategoryNotFound) {
		t.Fatalf("err = %v, want ErrCategoryNotFound", err)
	}
}
