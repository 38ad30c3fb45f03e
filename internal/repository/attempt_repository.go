package repository

import (
	"context"
	"time"

	"github.com/lshigami/cefrexam/internal/model"
	"gorm.io/gorm"
)

type AttemptRepository interface {
	Create(ctx context.Context, attempt *model.Attempt) error
	FindByIDForUser(ctx context.Context, id uint, userID string) (*model.Attempt, error)
	FindAttemptQuestion(ctx context.Context, attemptID, attemptQuestionID uint) (*model.AttemptQuestion, error)
	ListByUser(ctx context.Context, userID string, cursor uint, limit int) ([]model.Attempt, error)
	// Complete flips an IN_PROGRESS attempt to COMPLETED with its scores.
	// It reports false when the attempt was no longer IN_PROGRESS.
	Complete(ctx context.Context, attempt *model.Attempt) (bool, error)
}

type attemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Create(ctx context.Context, attempt *model.Attempt) error {
	// Questions are inserted together with the attempt.
	return r.db.WithContext(ctx).Create(attempt).Error
}

// FindByIDForUser scopes the lookup by owner, so a foreign attempt looks exactly like a missing one.
func (r *attemptRepository) FindByIDForUser(ctx context.Context, id uint, userID string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.db.WithContext(ctx).
		Preload("MockExam").
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("attempt_questions.order_index ASC, attempt_questions.id ASC")
		}).
		Preload("Answers").
		Where("id = ? AND user_id = ?", id, userID).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) FindAttemptQuestion(ctx context.Context, attemptID, attemptQuestionID uint) (*model.AttemptQuestion, error) {
	var q model.AttemptQuestion
	err := r.db.WithContext(ctx).
		Where("id = ? AND attempt_id = ?", attemptQuestionID, attemptID).
		First(&q).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *attemptRepository) ListByUser(ctx context.Context, userID string, cursor uint, limit int) ([]model.Attempt, error) {
	var attempts []model.Attempt
	query := r.db.WithContext(ctx).Preload("MockExam").Where("user_id = ?", userID)
	if cursor > 0 {
		query = query.Where("id < ?", cursor)
	}
	err := query.Order("id DESC").Limit(limit).Find(&attempts).Error
	return attempts, err
}

func (r *attemptRepository) Complete(ctx context.Context, attempt *model.Attempt) (bool, error) {
	completedAt := time.Now()
	if attempt.CompletedAt != nil {
		completedAt = *attempt.CompletedAt
	}
	res := r.db.WithContext(ctx).Model(&model.Attempt{}).
		Where("id = ? AND status = ?", attempt.ID, model.AttemptStatusInProgress).
		Updates(map[string]interface{}{
			"status":              model.AttemptStatusCompleted,
			"completed_at":        completedAt,
			"total_score":         attempt.TotalScore,
			"max_possible_score":  attempt.MaxPossibleScore,
			"percentage":          attempt.Percentage,
			"cefr_level_achieved": attempt.CefrLevelAchieved,
			"cefr_feedback":       attempt.CefrFeedback,
			"section_scores":      attempt.SectionScores,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
