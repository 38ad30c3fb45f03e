package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lshigami/cefrexam/config"
	"github.com/lshigami/cefrexam/internal/cache"
	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/events"
	"github.com/lshigami/cefrexam/internal/model"
	"github.com/lshigami/cefrexam/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type UsageLimits struct {
	MockExam   int
	WritingAI  int
	SpeakingAI int
	AITutor    int
}

// ProLimits apply per 30-day period; FreeLimits are lifetime totals.
var (
	ProLimits  = UsageLimits{MockExam: 3, WritingAI: 10, SpeakingAI: 6, AITutor: 50}
	FreeLimits = UsageLimits{WritingAI: 1, SpeakingAI: 1}
)

type AccessDecision struct {
	Allowed  bool
	Reason   string
	PlanType model.PlanType
}

func allow(plan model.PlanType) AccessDecision {
	return AccessDecision{Allowed: true, PlanType: plan}
}

func deny(plan model.PlanType, reason string) AccessDecision {
	return AccessDecision{Allowed: false, Reason: reason, PlanType: plan}
}

// Err converts a denial into an *AccessDeniedError; it is nil when allowed.
func (d AccessDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return &AccessDeniedError{Reason: d.Reason, PlanType: d.PlanType}
}

// AccessService decides whether gated features may be used. Checks never return errors:
// lookup failures deny. Record* must only be called after the feature was actually used.
type AccessService interface {
	GetUserPlanType(ctx context.Context, userID string) model.PlanType
	HasFullAccess(ctx context.Context, userID string) AccessDecision
	CanStartMockExam(ctx context.Context, userID string) AccessDecision
	CanUseWritingAI(ctx context.Context, userID string) AccessDecision
	CanUseSpeakingAI(ctx context.Context, userID string) AccessDecision
	CanUseAITutor(ctx context.Context, userID string) AccessDecision

	RecordMockExamUsage(ctx context.Context, userID string) error
	RecordWritingAIUsage(ctx context.Context, userID string) error
	RecordSpeakingAIUsage(ctx context.Context, userID string) error
	RecordAITutorUsage(ctx context.Context, userID string) error

	GetAccessStatus(ctx context.Context, userID string) (*dto.AccessStatusResponse, error)
}

type accessService struct {
	subscriptionRepo repository.SubscriptionRepository
	purchaseRepo     repository.PurchaseRepository
	usageRepo        repository.UsageRepository
	periods          UsagePeriodResolver
	cache            cache.Cache
	cacheTTL         time.Duration
	publisher        events.Publisher
	now              func() time.Time
}

func NewAccessService(
	subscriptionRepo repository.SubscriptionRepository,
	purchaseRepo repository.PurchaseRepository,
	usageRepo repository.UsageRepository,
	periods UsagePeriodResolver,
	statusCache cache.Cache,
	publisher events.Publisher,
	cfg *config.Config,
) AccessService {
	return &accessService{
		subscriptionRepo: subscriptionRepo,
		purchaseRepo:     purchaseRepo,
		usageRepo:        usageRepo,
		periods:          periods,
		cache:            statusCache,
		cacheTTL:         cfg.Redis.AccessCacheTTL,
		publisher:        publisher,
		now:              time.Now,
	}
}

func statusCacheKey(userID string) string {
	return "status:" + userID
}

func (s *accessService) GetUserPlanType(ctx context.Context, userID string) model.PlanType {
	now := s.now()
	if _, err := s.subscriptionRepo.FindActivePro(ctx, userID, now); err == nil {
		return model.PlanPro
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error().Err(err).Str("userID", userID).Msg("GetUserPlanType: subscription lookup failed")
	}

	purchases, err := s.purchaseRepo.FindValid(ctx, userID, model.ProductMockExam, now)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("GetUserPlanType: purchase lookup failed")
		return model.PlanFree
	}
	if len(purchases) > 0 {
		return model.PlanStandard
	}
	return model.PlanFree
}

// activeSubscription re-reads the Pro row behind a "pro" plan. A nil result means it
// expired between the two reads and the caller must treat the user as free.
func (s *accessService) activeSubscription(ctx context.Context, userID string) *model.Subscription {
	sub, err := s.subscriptionRepo.FindActivePro(ctx, userID, s.now())
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Str("userID", userID).Msg("Subscription lookup failed")
		}
		return nil
	}
	return sub
}

func (s *accessService) checkProQuota(ctx context.Context, userID string, usageType model.UsageType, limit int, label string) AccessDecision {
	sub := s.activeSubscription(ctx, userID)
	if sub == nil {
		return deny(model.PlanFree, "Subscription is no longer active")
	}
	used, err := s.periods.UsedInCurrentPeriod(ctx, userID, usageType, sub)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Str("usageType", string(usageType)).Msg("Usage lookup failed")
		return deny(model.PlanPro, "Unable to verify usage right now")
	}
	if used >= limit {
		return deny(model.PlanPro, fmt.Sprintf("%s limit reached for this period (%d/%d)", label, used, limit))
	}
	return allow(model.PlanPro)
}

func (s *accessService) checkFreeDemo(ctx context.Context, userID string, usageType model.UsageType, limit int, label string) AccessDecision {
	used, err := s.usageRepo.SumUsed(ctx, userID, usageType)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Str("usageType", string(usageType)).Msg("Lifetime usage lookup failed")
		return deny(model.PlanFree, "Unable to verify usage right now")
	}
	if used >= limit {
		return deny(model.PlanFree, fmt.Sprintf("Free %s demo already used. Upgrade to Pro for more", label))
	}
	return allow(model.PlanFree)
}

func (s *accessService) HasFullAccess(ctx context.Context, userID string) AccessDecision {
	plan := s.GetUserPlanType(ctx, userID)
	if plan != model.PlanPro {
		return deny(plan, "Full platform access requires a Pro subscription")
	}
	if s.activeSubscription(ctx, userID) == nil {
		return deny(model.PlanFree, "Subscription is no longer active")
	}
	return allow(model.PlanPro)
}

func (s *accessService) CanStartMockExam(ctx context.Context, userID string) AccessDecision {
	plan := s.GetUserPlanType(ctx, userID)
	switch plan {
	case model.PlanPro:
		return s.checkProQuota(ctx, userID, model.UsageMockExam, ProLimits.MockExam, "Mock exam")
	case model.PlanStandard:
		purchases, err := s.purchaseRepo.FindValid(ctx, userID, model.ProductMockExam, s.now())
		if err != nil {
			log.Error().Err(err).Str("userID", userID).Msg("CanStartMockExam: purchase lookup failed")
			return deny(plan, "Unable to verify purchases right now")
		}
		if len(purchases) == 0 || purchases[0].RemainingUses <= 0 {
			return deny(plan, "No mock exams remaining on your purchases")
		}
		return allow(plan)
	default:
		return deny(model.PlanFree, "Mock exams require a purchase or Pro subscription")
	}
}

func (s *accessService) CanUseWritingAI(ctx context.Context, userID string) AccessDecision {
	plan := s.GetUserPlanType(ctx, userID)
	switch plan {
	case model.PlanPro:
		return s.checkProQuota(ctx, userID, model.UsageWritingAI, ProLimits.WritingAI, "Writing AI")
	case model.PlanFree:
		return s.checkFreeDemo(ctx, userID, model.UsageWritingAI, FreeLimits.WritingAI, "writing AI")
	default:
		return deny(plan, "Writing AI is not included in the Standard plan")
	}
}

func (s *accessService) CanUseSpeakingAI(ctx context.Context, userID string) AccessDecision {
	plan := s.GetUserPlanType(ctx, userID)
	switch plan {
	case model.PlanPro:
		return s.checkProQuota(ctx, userID, model.UsageSpeakingAI, ProLimits.SpeakingAI, "Speaking AI")
	case model.PlanFree:
		return s.checkFreeDemo(ctx, userID, model.UsageSpeakingAI, FreeLimits.SpeakingAI, "speaking AI")
	default:
		return deny(plan, "Speaking AI is not included in the Standard plan")
	}
}

func (s *accessService) CanUseAITutor(ctx context.Context, userID string) AccessDecision {
	plan := s.GetUserPlanType(ctx, userID)
	if plan != model.PlanPro {
		return deny(plan, "AI Tutor requires a Pro subscription")
	}
	return s.checkProQuota(ctx, userID, model.UsageAITutor, ProLimits.AITutor, "AI Tutor")
}

func (s *accessService) incrementProPeriod(ctx context.Context, userID string, usageType model.UsageType) error {
	sub := s.activeSubscription(ctx, userID)
	if sub == nil {
		log.Warn().Str("userID", userID).Str("usageType", string(usageType)).Msg("Pro subscription vanished before usage was recorded")
		return nil
	}
	usage, err := s.periods.Resolve(ctx, userID, usageType, sub)
	if err != nil {
		return err
	}
	if err := s.usageRepo.Increment(ctx, usage.ID); err != nil {
		return fmt.Errorf("failed to increment %s usage: %w", usageType, err)
	}
	return nil
}

func (s *accessService) RecordMockExamUsage(ctx context.Context, userID string) error {
	plan := s.GetUserPlanType(ctx, userID)
	switch plan {
	case model.PlanStandard:
		purchases, err := s.purchaseRepo.FindValid(ctx, userID, model.ProductMockExam, s.now())
		if err != nil {
			return fmt.Errorf("failed to load purchases: %w", err)
		}
		if len(purchases) == 0 {
			return ErrNoPurchaseRemaining
		}
		if err := s.purchaseRepo.DecrementRemaining(ctx, purchases[0].ID); err != nil {
			return fmt.Errorf("failed to consume purchase %d: %w", purchases[0].ID, err)
		}
	case model.PlanPro:
		if err := s.incrementProPeriod(ctx, userID, model.UsageMockExam); err != nil {
			return err
		}
	default:
		// Free demo exams are metered by the caller.
		return nil
	}
	s.afterRecord(ctx, userID, model.UsageMockExam, plan)
	return nil
}

func (s *accessService) recordDemoOrPeriod(ctx context.Context, userID string, usageType model.UsageType) error {
	plan := s.GetUserPlanType(ctx, userID)
	switch plan {
	case model.PlanFree:
		if err := s.usageRepo.IncrementForPeriod(ctx, userID, usageType, FreeDemoPeriodStart, FreeDemoPeriodEnd); err != nil {
			return fmt.Errorf("failed to record free %s usage: %w", usageType, err)
		}
	case model.PlanPro:
		if err := s.incrementProPeriod(ctx, userID, usageType); err != nil {
			return err
		}
	default:
		log.Warn().Str("userID", userID).Str("usageType", string(usageType)).Str("plan", string(plan)).Msg("Usage recorded for a plan without this feature, ignoring")
		return nil
	}
	s.afterRecord(ctx, userID, usageType, plan)
	return nil
}

func (s *accessService) RecordWritingAIUsage(ctx context.Context, userID string) error {
	return s.recordDemoOrPeriod(ctx, userID, model.UsageWritingAI)
}

func (s *accessService) RecordSpeakingAIUsage(ctx context.Context, userID string) error {
	return s.recordDemoOrPeriod(ctx, userID, model.UsageSpeakingAI)
}

func (s *accessService) RecordAITutorUsage(ctx context.Context, userID string) error {
	plan := s.GetUserPlanType(ctx, userID)
	if plan != model.PlanPro {
		return nil
	}
	if err := s.incrementProPeriod(ctx, userID, model.UsageAITutor); err != nil {
		return err
	}
	s.afterRecord(ctx, userID, model.UsageAITutor, plan)
	return nil
}

// afterRecord drops the cached status and announces the usage. Failures are only logged.
func (s *accessService) afterRecord(ctx context.Context, userID string, usageType model.UsageType, plan model.PlanType) {
	if err := s.cache.Delete(ctx, statusCacheKey(userID)); err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("Failed to invalidate access status cache")
	}
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishUsageRecorded(ctx, events.UsageRecordedEvent{
		UserID:     userID,
		UsageType:  string(usageType),
		PlanType:   string(plan),
		RecordedAt: s.now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("Failed to publish usage event")
	}
}

func (s *accessService) GetAccessStatus(ctx context.Context, userID string) (*dto.AccessStatusResponse, error) {
	var cached dto.AccessStatusResponse
	if err := s.cache.Get(ctx, statusCacheKey(userID), &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Str("userID", userID).Msg("Access status cache read failed")
	}

	status, err := s.computeAccessStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, statusCacheKey(userID), status, s.cacheTTL); err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("Access status cache write failed")
	}
	return status, nil
}

func (s *accessService) computeAccessStatus(ctx context.Context, userID string) (*dto.AccessStatusResponse, error) {
	now := s.now()
	plan := s.GetUserPlanType(ctx, userID)
	status := &dto.AccessStatusResponse{PlanType: string(plan)}

	purchases, err := s.purchaseRepo.FindValid(ctx, userID, model.ProductMockExam, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchases: %w", err)
	}
	for _, p := range purchases {
		status.Purchases.TotalRemaining += p.RemainingUses
	}
	if len(purchases) > 0 {
		nearest := purchases[0].ExpiresAt
		status.Purchases.NearestExpiry = &nearest
	}

	switch plan {
	case model.PlanPro:
		sub := s.activeSubscription(ctx, userID)
		if sub == nil {
			status.PlanType = string(model.PlanFree)
			break
		}
		status.Subscription = &dto.SubscriptionSummary{
			PlanType:  string(sub.PlanType),
			Status:    sub.Status,
			StartedAt: sub.StartedAt,
			ExpiresAt: sub.ExpiresAt,
		}
		counters := []struct {
			usageType model.UsageType
			limit     int
			target    *dto.UsageLimit
		}{
			{model.UsageMockExam, ProLimits.MockExam, &status.Usage.MockExam},
			{model.UsageWritingAI, ProLimits.WritingAI, &status.Usage.WritingAI},
			{model.UsageSpeakingAI, ProLimits.SpeakingAI, &status.Usage.SpeakingAI},
			{model.UsageAITutor, ProLimits.AITutor, &status.Usage.AITutor},
		}
		for _, c := range counters {
			used, err := s.periods.UsedInCurrentPeriod(ctx, userID, c.usageType, sub)
			if err != nil {
				return nil, err
			}
			*c.target = dto.UsageLimit{Used: used, Limit: c.limit}
		}
	default:
		// Mock exams are shown as remaining purchased uses rather than a quota.
		status.Usage.MockExam = dto.UsageLimit{Used: 0, Limit: status.Purchases.TotalRemaining}
		if plan == model.PlanFree {
			writing, err := s.usageRepo.SumUsed(ctx, userID, model.UsageWritingAI)
			if err != nil {
				return nil, fmt.Errorf("failed to sum writing usage: %w", err)
			}
			speaking, err := s.usageRepo.SumUsed(ctx, userID, model.UsageSpeakingAI)
			if err != nil {
				return nil, fmt.Errorf("failed to sum speaking usage: %w", err)
			}
			status.Usage.WritingAI = dto.UsageLimit{Used: writing, Limit: FreeLimits.WritingAI}
			status.Usage.SpeakingAI = dto.UsageLimit{Used: speaking, Limit: FreeLimits.SpeakingAI}
		}
	}

	status.Access = dto.AccessFlags{
		FullAccess: s.HasFullAccess(ctx, userID).Allowed,
		MockExam:   s.CanStartMockExam(ctx, userID).Allowed,
		WritingAI:  s.CanUseWritingAI(ctx, userID).Allowed,
		SpeakingAI: s.CanUseSpeakingAI(ctx, userID).Allowed,
		AITutor:    s.CanUseAITutor(ctx, userID).Allowed,
	}
	return status, nil
}
