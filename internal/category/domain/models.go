// Package domain contains persistence models for spending categories.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidCategory  = errors.New("invalid_category")
	ErrCategoryNotFound = errors.New("category_not_found")
)

// Category groups subscriptions and optionally carries a monthly budget.
// MonthlyBudget == 0 means no budget is enforced.
type Category struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	UserID        snowflake.ID `gorm:"not null;index"`
	Name          string       `gorm:"type:text;not null"`
	MonthlyBudget float64      `gorm:"not null;default:0"`
	Currency      string       `gorm:"type:text"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Category) TableName() string { return "categories" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, category *Category) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Category, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Category, error)
	Save(ctx context.Context, db *gorm.DB, category *Category) error
}
