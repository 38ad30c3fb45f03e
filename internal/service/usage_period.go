package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lshigami/cefrexam/internal/model"
	"github.com/lshigami/cefrexam/internal/repository"
	"gorm.io/gorm"
)

// UsagePeriodLength is the fixed length of a Pro quota window.
const UsagePeriodLength = 30 * 24 * time.Hour

// Free writing/speaking demos are tracked on one row spanning this window.
var (
	FreeDemoPeriodStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	FreeDemoPeriodEnd   = time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)
)

// CurrentUsagePeriod returns the 30-day window [start, end) that contains now, counting whole
// windows forward from startedAt. Before startedAt the first window is returned.
func CurrentUsagePeriod(startedAt, now time.Time) (time.Time, time.Time) {
	start := startedAt.UTC()
	if now.Before(start) {
		return start, start.Add(UsagePeriodLength)
	}
	hops := int64(now.Sub(start) / UsagePeriodLength)
	start = start.Add(time.Duration(hops) * UsagePeriodLength)
	return start, start.Add(UsagePeriodLength)
}

type UsagePeriodResolver interface {
	// Resolve returns the counter for the subscription's current window, creating it at zero if absent.
	Resolve(ctx context.Context, userID string, usageType model.UsageType, sub *model.Subscription) (*model.UsageTracking, error)
	// UsedInCurrentPeriod reads the current window's count without creating anything.
	UsedInCurrentPeriod(ctx context.Context, userID string, usageType model.UsageType, sub *model.Subscription) (int, error)
}

type usagePeriodResolver struct {
	usageRepo repository.UsageRepository
	now       func() time.Time
}

func NewUsagePeriodResolver(usageRepo repository.UsageRepository) UsagePeriodResolver {
	return &usagePeriodResolver{usageRepo: usageRepo, now: time.Now}
}

func (r *usagePeriodResolver) Resolve(ctx context.Context, userID string, usageType model.UsageType, sub *model.Subscription) (*model.UsageTracking, error) {
	start, end := CurrentUsagePeriod(sub.StartedAt, r.now())

	usage, err := r.usageRepo.FindWithinPeriod(ctx, userID, usageType, start, end)
	if err == nil {
		return usage, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up %s usage: %w", usageType, err)
	}

	fresh := &model.UsageTracking{
		UserID:      userID,
		UsageType:   usageType,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	if err := r.usageRepo.CreateIfAbsent(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to create %s usage counter: %w", usageType, err)
	}
	if fresh.ID != 0 {
		return fresh, nil
	}
	// A concurrent request inserted the same window first.
	usage, err = r.usageRepo.FindWithinPeriod(ctx, userID, usageType, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to reload %s usage counter: %w", usageType, err)
	}
	return usage, nil
}

func (r *usagePeriodResolver) UsedInCurrentPeriod(ctx context.Context, userID string, usageType model.UsageType, sub *model.Subscription) (int, error) {
	start, end := CurrentUsagePeriod(sub.StartedAt, r.now())
	usage, err := r.usageRepo.FindWithinPeriod(ctx, userID, usageType, start, end)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up %s usage: %w", usageType, err)
	}
	return usage.UsedCount, nil
}
