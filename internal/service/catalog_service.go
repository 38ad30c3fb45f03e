package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// CatalogService lists the mock exams a learner can start.
type CatalogService interface {
	ListMockExams(ctx context.Context) ([]dto.MockExamCatalogItem, error)
	GetMockExam(ctx context.Context, id uint) (*dto.MockExamDetail, error)
}

type catalogService struct {
	mockExamRepo repository.MockExamRepository
}

func NewCatalogService(mockExamRepo repository.MockExamRepository) CatalogService {
	return &catalogService{mockExamRepo: mockExamRepo}
}

func (s *catalogService) ListMockExams(ctx context.Context) ([]dto.MockExamCatalogItem, error) {
	exams, err := s.mockExamRepo.FindAllWithQuestionCount(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get mock exams with question count from repository")
		return nil, fmt.Errorf("error fetching mock exams: %w", err)
	}

	items := make([]dto.MockExamCatalogItem, 0, len(exams))
	for _, e := range exams {
		items = append(items, dto.MockExamCatalogItem{
			ID:              e.ID,
			Title:           e.Title,
			Description:     e.Description,
			Level:           e.Level,
			DurationMinutes: e.DurationMinutes,
			QuestionCount:   e.QuestionCount,
		})
	}
	return items, nil
}

func (s *catalogService) GetMockExam(ctx context.Context, id uint) (*dto.MockExamDetail, error) {
	exam, err := s.mockExamRepo.FindByIDWithQuestions(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMockExamNotFound
	}
	if err != nil {
		log.Error().Err(err).Uint("mockExamID", id).Msg("Failed to get mock exam details from repository")
		return nil, fmt.Errorf("error fetching mock exam %d: %w", id, err)
	}

	var detail dto.MockExamDetail
	if err := copier.Copy(&detail.MockExamCatalogItem, exam); err != nil {
		log.Error().Err(err).Msg("Failed to copy MockExam model to MockExamDetail")
		return nil, fmt.Errorf("error preparing mock exam details: %w", err)
	}
	detail.QuestionCount = len(exam.Questions)
	detail.Sections = make(map[string]int)
	for _, q := range exam.Questions {
		detail.Sections[string(q.Section)]++
	}
	return &detail, nil
}
