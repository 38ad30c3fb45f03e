package repository

import (
	"context"

	"github.com/lshigami/cefrexam/internal/model"
	"gorm.io/gorm"
)

type MockExamRepository interface {
	Create(ctx context.Context, exam *model.MockExam) error
	FindByID(ctx context.Context, id uint) (*model.MockExam, error)
	FindByIDWithQuestions(ctx context.Context, id uint) (*model.MockExam, error)
	FindAllWithQuestionCount(ctx context.Context) ([]MockExamWithCount, error)
}

type MockExamWithCount struct {
	model.MockExam
	QuestionCount int
}

type mockExamRepository struct {
	db *gorm.DB
}

func NewMockExamRepository(db *gorm.DB) MockExamRepository {
	return &mockExamRepository{db: db}
}

func (r *mockExamRepository) Create(ctx context.Context, exam *model.MockExam) error {
	return r.db.WithContext(ctx).Create(exam).Error
}

func (r *mockExamRepository) FindByID(ctx context.Context, id uint) (*model.MockExam, error) {
	var exam model.MockExam
	if err := r.db.WithContext(ctx).First(&exam, id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *mockExamRepository) FindByIDWithQuestions(ctx context.Context, id uint) (*model.MockExam, error) {
	var exam model.MockExam
	err := r.db.WithContext(ctx).Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("questions.order_in_exam ASC")
	}).First(&exam, id).Error
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *mockExamRepository) FindAllWithQuestionCount(ctx context.Context) ([]MockExamWithCount, error) {
	var results []MockExamWithCount
	err := r.db.WithContext(ctx).Model(&model.MockExam{}).
		Select("mock_exams.*, (SELECT COUNT(*) FROM questions WHERE questions.mock_exam_id = mock_exams.id AND questions.deleted_at IS NULL) as question_count").
		Where("mock_exams.deleted_at IS NULL").
		Order("mock_exams.created_at DESC").
		Scan(&results).Error
	return results, err
}
