package repository

import (
	"context"

	"github.com/lshigami/cefrexam/internal/model"
	"gorm.io/gorm"
)

type QuestionRepository interface {
	FindByMockExamID(ctx context.Context, mockExamID uint) ([]model.Question, error)
}

type questionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) FindByMockExamID(ctx context.Context, mockExamID uint) ([]model.Question, error) {
	var questions []model.Question
	if err := r.db.WithContext(ctx).Where("mock_exam_id = ?", mockExamID).Order("order_in_exam ASC, id ASC").Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}
