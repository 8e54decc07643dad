package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	categorydomain "github.com/subtrackhq/subtrack/internal/category/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() categorydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, category *categorydomain.Category) error {
	return db.WithContext(ctx).Create(category).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*categorydomain.Category, error) {
	var category categorydomain.Category
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&category).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &category, nil
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]categorydomain.Category, error) {
	var categories []categorydomain.Category
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name").
		Find(&categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, category *categorydomain.Category) error {
	return db.WithContext(ctx).Save(category).Error
}
