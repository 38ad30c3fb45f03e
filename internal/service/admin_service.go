package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jinzhu/copier"
	"github.com/lshigami/cefrexam/internal/cache"
	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/model"
	"github.com/lshigami/cefrexam/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// AdminService holds operator actions: authoring mock exams and granting entitlements
// after an out-of-band payment.
type AdminService interface {
	CreateMockExam(ctx context.Context, req dto.MockExamCreateDTO) (*dto.MockExamResponseDTO, error)
	ListMockExams(ctx context.Context) ([]dto.MockExamSummaryDTO, error)
	GrantSubscription(ctx context.Context, req dto.GrantSubscriptionDTO) (*dto.SubscriptionResponseDTO, error)
	GrantPurchase(ctx context.Context, req dto.GrantPurchaseDTO) (*dto.PurchaseResponseDTO, error)
}

type adminService struct {
	mockExamRepo     repository.MockExamRepository
	subscriptionRepo repository.SubscriptionRepository
	purchaseRepo     repository.PurchaseRepository
	statusCache      cache.Cache
	now              func() time.Time
}

func NewAdminService(
	mockExamRepo repository.MockExamRepository,
	subscriptionRepo repository.SubscriptionRepository,
	purchaseRepo repository.PurchaseRepository,
	statusCache cache.Cache,
) AdminService {
	return &adminService{
		mockExamRepo:     mockExamRepo,
		subscriptionRepo: subscriptionRepo,
		purchaseRepo:     purchaseRepo,
		statusCache:      statusCache,
		now:              time.Now,
	}
}

func (s *adminService) CreateMockExam(ctx context.Context, req dto.MockExamCreateDTO) (*dto.MockExamResponseDTO, error) {
	if len(req.Questions) == 0 {
		return nil, ErrMockExamEmpty
	}

	seen := make(map[int]bool, len(req.Questions))
	questions := make([]model.Question, 0, len(req.Questions))
	for _, qDto := range req.Questions {
		if seen[qDto.OrderInExam] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateQuestionOrder, qDto.OrderInExam)
		}
		seen[qDto.OrderInExam] = true

		var question model.Question
		if err := copier.Copy(&question, &qDto); err != nil {
			return nil, fmt.Errorf("error mapping question %d: %w", qDto.OrderInExam, err)
		}
		question.Section = model.Section(qDto.Section)
		question.Options = datatypes.JSON(qDto.Options)
		question.CorrectAnswer = datatypes.JSON(qDto.CorrectAnswer)
		question.Rubric = datatypes.JSON(qDto.Rubric)
		questions = append(questions, question)
	}

	exam := model.MockExam{
		Title:           req.Title,
		Description:     req.Description,
		Level:           req.Level,
		DurationMinutes: req.DurationMinutes,
		Questions:       questions,
	}
	if err := s.mockExamRepo.Create(ctx, &exam); err != nil {
		log.Error().Err(err).Str("title", req.Title).Msg("Failed to create mock exam in database")
		return nil, fmt.Errorf("database error creating mock exam: %w", err)
	}

	created, err := s.mockExamRepo.FindByIDWithQuestions(ctx, exam.ID)
	if err != nil {
		log.Error().Err(err).Uint("mockExamID", exam.ID).Msg("Failed to reload created mock exam, responding with input")
		created = &exam
	}

	var resp dto.MockExamResponseDTO
	if err := copier.Copy(&resp, created); err != nil {
		log.Error().Err(err).Msg("Failed to copy MockExam model to MockExamResponseDTO")
		return nil, fmt.Errorf("error preparing response data: %w", err)
	}
	return &resp, nil
}

func (s *adminService) ListMockExams(ctx context.Context) ([]dto.MockExamSummaryDTO, error) {
	exams, err := s.mockExamRepo.FindAllWithQuestionCount(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list mock exams")
		return nil, fmt.Errorf("failed to list mock exams: %w", err)
	}
	out := make([]dto.MockExamSummaryDTO, 0, len(exams))
	for _, e := range exams {
		out = append(out, dto.MockExamSummaryDTO{
			ID:              e.ID,
			Title:           e.Title,
			Level:           e.Level,
			DurationMinutes: e.DurationMinutes,
			QuestionCount:   e.QuestionCount,
			CreatedAt:       e.CreatedAt,
		})
	}
	return out, nil
}

func (s *adminService) GrantSubscription(ctx context.Context, req dto.GrantSubscriptionDTO) (*dto.SubscriptionResponseDTO, error) {
	startedAt := s.now().UTC()
	if req.StartedAt != nil {
		startedAt = req.StartedAt.UTC()
	}
	sub := model.Subscription{
		UserID:    req.UserID,
		PlanType:  model.PlanPro,
		Status:    "active",
		StartedAt: startedAt,
		ExpiresAt: startedAt.AddDate(0, 0, req.DurationDays),
	}
	if err := s.subscriptionRepo.Create(ctx, &sub); err != nil {
		log.Error().Err(err).Str("userID", req.UserID).Msg("Failed to grant subscription")
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	s.invalidateStatus(ctx, req.UserID)

	var resp dto.SubscriptionResponseDTO
	if err := copier.Copy(&resp, &sub); err != nil {
		return nil, fmt.Errorf("error preparing response data: %w", err)
	}
	resp.PlanType = string(sub.PlanType)
	return &resp, nil
}

func (s *adminService) GrantPurchase(ctx context.Context, req dto.GrantPurchaseDTO) (*dto.PurchaseResponseDTO, error) {
	purchase := model.Purchase{
		UserID:        req.UserID,
		ProductType:   req.ProductType,
		RemainingUses: req.Uses,
		ExpiresAt:     req.ExpiresAt.UTC(),
	}
	if err := s.purchaseRepo.Create(ctx, &purchase); err != nil {
		log.Error().Err(err).Str("userID", req.UserID).Msg("Failed to grant purchase")
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}
	s.invalidateStatus(ctx, req.UserID)

	var resp dto.PurchaseResponseDTO
	if err := copier.Copy(&resp, &purchase); err != nil {
		return nil, fmt.Errorf("error preparing response data: %w", err)
	}
	return &resp, nil
}

func (s *adminService) invalidateStatus(ctx context.Context, userID string) {
	if err := s.statusCache.Delete(ctx, statusCacheKey(userID)); err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("Failed to invalidate access status cache")
	}
}
