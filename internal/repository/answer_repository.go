package repository

import (
	"context"
	"errors"

	"github.com/lshigami/cefrexam/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAnswerKeyMissing = errors.New("answer has neither attempt question id nor question id")

type AnswerRepository interface {
	// Upsert inserts the answer or, when a row for the same (attempt, question) key
	// exists, overwrites only updateColumns on it. Last write wins.
	Upsert(ctx context.Context, answer *model.Answer, updateColumns ...string) error
	FindByAttempt(ctx context.Context, attemptID uint) ([]model.Answer, error)
}

type answerRepository struct {
	db *gorm.DB
}

func NewAnswerRepository(db *gorm.DB) AnswerRepository {
	return &answerRepository{db: db}
}

func (r *answerRepository) Upsert(ctx context.Context, answer *model.Answer, updateColumns ...string) error {
	var target []clause.Column
	switch {
	case answer.AttemptQuestionID != nil:
		target = []clause.Column{{Name: "attempt_id"}, {Name: "attempt_question_id"}}
	case answer.QuestionID != nil:
		target = []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}}
	default:
		return ErrAnswerKeyMissing
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   target,
		DoUpdates: clause.AssignmentColumns(append(updateColumns, "updated_at")),
	}).Create(answer).Error
}

func (r *answerRepository) FindByAttempt(ctx context.Context, attemptID uint) ([]model.Answer, error) {
	var answers []model.Answer
	err := r.db.WithContext(ctx).Where("attempt_id = ?", attemptID).Order("id ASC").Find(&answers).Error
	return answers, err
}
