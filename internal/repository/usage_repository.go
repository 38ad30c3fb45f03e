package repository

import (
	"context"
	"time"

	"github.com/lshigami/cefrexam/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UsageRepository interface {
	// FindWithinPeriod returns the counter lying inside [start, end].
	FindWithinPeriod(ctx context.Context, userID string, usageType model.UsageType, start, end time.Time) (*model.UsageTracking, error)
	// CreateIfAbsent inserts the counter unless one already exists for its (user, type, periodStart).
	CreateIfAbsent(ctx context.Context, usage *model.UsageTracking) error
	Increment(ctx context.Context, id uint) error
	// IncrementForPeriod adds one to the counter of the exact period, creating it at 1 if needed.
	IncrementForPeriod(ctx context.Context, userID string, usageType model.UsageType, start, end time.Time) error
	SumUsed(ctx context.Context, userID string, usageType model.UsageType) (int, error)
}

type usageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) FindWithinPeriod(ctx context.Context, userID string, usageType model.UsageType, start, end time.Time) (*model.UsageTracking, error) {
	var usage model.UsageTracking
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND usage_type = ? AND period_start >= ? AND period_end <= ?", userID, usageType, start, end).
		Order("period_start ASC").
		First(&usage).Error
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *usageRepository) CreateIfAbsent(ctx context.Context, usage *model.UsageTracking) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "usage_type"}, {Name: "period_start"}},
		DoNothing: true,
	}).Create(usage).Error
}

func (r *usageRepository) Increment(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&model.UsageTracking{}).
		Where("id = ?", id).
		UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error
}

func (r *usageRepository) IncrementForPeriod(ctx context.Context, userID string, usageType model.UsageType, start, end time.Time) error {
	usage := model.UsageTracking{
		UserID:      userID,
		UsageType:   usageType,
		PeriodStart: start,
		PeriodEnd:   end,
		UsedCount:   1,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "usage_type"}, {Name: "period_start"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"used_count": gorm.Expr("usage_trackings.used_count + 1"),
			"updated_at": time.Now(),
		}),
	}).Create(&usage).Error
}

func (r *usageRepository) SumUsed(ctx context.Context, userID string, usageType model.UsageType) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.UsageTracking{}).
		Where("user_id = ? AND usage_type = ?", userID, usageType).
		Select("COALESCE(SUM(used_count), 0)").
		Scan(&total).Error
	return int(total), err
}
