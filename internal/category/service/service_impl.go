package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	categorydomain "github.com/subtrackhq/subtrack/internal/category/domain"
	"github.com/subtrackhq/subtrack/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	CategoryRepo categorydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	categoryrepo categorydomain.Repository
}

func NewService(p ServiceParam) categorydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("category.service"),
		genID: p.GenID,
		clock: p.Clock,

		categoryrepo: p.CategoryRepo,
	}
}

func (s *Service) Create(ctx context.Context, req categorydomain.CreateCategoryRequest) (categorydomain.Category, error) {
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		return categorydomain.Category{}, categorydomain.ErrInvalidUser
	}
	if strings.TrimSpace(req.Name) == "" {
		return categorydomain.Category{}, categorydomain.ErrInvalidName
	}
	if req.MonthlyBudget < 0 {
		return categorydomain.Category{}, categorydomain.ErrInvalidBudget
	}

	now := s.clock.Now()
	category := categorydomain.Category{
		ID:            s.genID.Generate(),
		UserID:        userID,
		Name:          strings.TrimSpace(req.Name),
		MonthlyBudget: req.MonthlyBudget,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.categoryrepo.Insert(ctx, s.db, &category); err != nil {
		return categorydomain.Category{}, err
	}
	return category, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]categorydomain.Category, error) {
	uid, err := snowflake.ParseString(userID)
	if err != nil {
		return nil, categorydomain.ErrInvalidUser
	}
	return s.categoryrepo.FindByUserID(ctx, s.db, uid)
}

// Update patches name, budget or currency. Subscriptions keep the category
// name they were tagged with at assignment time; a rename only affects new
// assignments.
func (s *Service) Update(ctx context.Context, req categorydomain.UpdateCategoryRequest) (categorydomain.Category, error) {
	uid, err := snowflake.ParseString(req.UserID)
	if err != nil {
		return categorydomain.Category{}, categorydomain.ErrInvalidUser
	}
	cid, err := snowflake.ParseString(req.CategoryID)
	if err != nil {
		return categorydomain.Category{}, categorydomain.ErrInvalidCategory
	}

	category, err := s.categoryrepo.FindByID(ctx, s.db, cid)
	if err != nil {
		return categorydomain.Category{}, err
	}
	if category == nil {
		return categorydomain.Category{}, categorydomain.ErrCategoryNotFound
	}
	if category.UserID != uid {
		return categorydomain.Category{}, categorydomain.ErrForbidden
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return categorydomain.Category{}, categorydomain.ErrInvalidName
		}
		category.Name = strings.TrimSpace(*req.Name)
	}
	if req.MonthlyBudget != nil {
		if *req.MonthlyBudget < 0 {
			return categorydomain.Category{}, categorydomain.ErrInvalidBudget
		}
		category.MonthlyBudget = *req.MonthlyBudget
	}
	if req.Currency != nil {
		category.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}

	category.UpdatedAt = s.clock.Now()
	if err := s.categoryrepo.Save(ctx, s.db, category); err != nil {
		return categorydomain.Category{}, err
	}
	return *category, nil
}
