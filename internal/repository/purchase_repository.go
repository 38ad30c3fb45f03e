package repository

import (
	"context"
	"time"

	"github.com/lshigami/cefrexam/internal/model"
	"gorm.io/gorm"
)

type PurchaseRepository interface {
	Create(ctx context.Context, purchase *model.Purchase) error
	// FindValid lists unexpired purchases with uses left, earliest expiry first.
	FindValid(ctx context.Context, userID, productType string, now time.Time) ([]model.Purchase, error)
	DecrementRemaining(ctx context.Context, id uint) error
}

type purchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) Create(ctx context.Context, purchase *model.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *purchaseRepository) FindValid(ctx context.Context, userID, productType string, now time.Time) ([]model.Purchase, error) {
	var purchases []model.Purchase
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_type = ? AND remaining_uses > 0 AND expires_at > ?", userID, productType, now).
		Order("expires_at ASC, id ASC").
		Find(&purchases).Error
	return purchases, err
}

func (r *purchaseRepository) DecrementRemaining(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("id = ? AND remaining_uses > 0", id).
		UpdateColumn("remaining_uses", gorm.Expr("remaining_uses - 1")).Error
}
