package repository

import (
	"context"
	"time"

	"github.com/lshigami/cefrexam/internal/model"
	"gorm.io/gorm"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *model.Subscription) error
	// FindActivePro returns the active, unexpired Pro subscription with the most distant expiry.
	FindActivePro(ctx context.Context, userID string, now time.Time) (*model.Subscription, error)
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionRepository) FindActivePro(ctx context.Context, userID string, now time.Time) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND plan_type = ? AND status = ? AND expires_at > ?", userID, model.PlanPro, "active", now).
		Order("expires_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
