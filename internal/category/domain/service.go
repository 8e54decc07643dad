package domain

import (
	"context"
	"errors"
)

type CreateCategoryRequest struct {
	UserID        string  `json:"user_id"`
	Name          string  `json:"name"`
	MonthlyBudget float64 `json:"monthly_budget,omitempty"`
	Currency      string  `json:"currency,omitempty"`
}

type UpdateCategoryRequest struct {
	UserID        string   `json:"user_id"`
	CategoryID    string   `json:"category_id"`
	Name          *string  `json:"name,omitempty"`
	MonthlyBudget *float64 `json:"monthly_budget,omitempty"`
	Currency      *string  `json:"currency,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateCategoryRequest) (Category, error)
	List(ctx context.Context, userID string) ([]Category, error)
	Update(ctx context.Context, req UpdateCategoryRequest) (Category, error)
}

var (
	ErrInvalidUser   = errors.New("invalid_user")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidBudget = errors.New("invalid_budget")
	ErrForbidden     = errors.New("forbidden")
)
