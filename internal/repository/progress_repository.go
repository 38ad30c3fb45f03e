package repository

import (
	"context"
	"time"

	"github.com/lshigami/cefrexam/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository interface {
	// RecordCompletion bumps the exam count (or starts it at 1) and stamps the latest level.
	RecordCompletion(ctx context.Context, userID, cefrLevel string, at time.Time) error
	FindByUser(ctx context.Context, userID string) (*model.UserProgress, error)
}

type progressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) RecordCompletion(ctx context.Context, userID, cefrLevel string, at time.Time) error {
	progress := model.UserProgress{
		UserID:              userID,
		TotalExamsTaken:     1,
		CurrentCefrEstimate: &cefrLevel,
		LastActivityAt:      at,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_exams_taken":     gorm.Expr("user_progresses.total_exams_taken + 1"),
			"current_cefr_estimate": cefrLevel,
			"last_activity_at":      at,
			"updated_at":            at,
		}),
	}).Create(&progress).Error
}

func (r *progressRepository) FindByUser(ctx context.Context, userID string) (*model.UserProgress, error) {
	var progress model.UserProgress
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&progress).Error; err != nil {
		return nil, err
	}
	return &progress, nil
}
