package service

import (
	"context"
	"testing"
	"time"

	"github.com/lshigami/cefrexam/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCurrentUsagePeriod(t *testing.T) {
	started := day(2024, 1, 1)

	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"first window", day(2024, 1, 15), day(2024, 1, 1), day(2024, 1, 31)},
		{"second window", day(2024, 2, 20), day(2024, 1, 31), day(2024, 3, 1)},
		{"exact boundary opens next window", day(2024, 1, 31), day(2024, 1, 31), day(2024, 3, 1)},
		{"last instant of first window", day(2024, 1, 31).Add(-time.Nanosecond), day(2024, 1, 1), day(2024, 1, 31)},
		{"before start", day(2023, 12, 1), day(2024, 1, 1), day(2024, 1, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := CurrentUsagePeriod(started, tt.now)
			assert.True(t, tt.wantStart.Equal(start), "start = %s", start)
			assert.True(t, tt.wantEnd.Equal(end), "end = %s", end)
			assert.Equal(t, UsagePeriodLength, end.Sub(start))
		})
	}
}

func TestUsagePeriodResolver_ResolveCreatesOnceAndReuses(t *testing.T) {
	ctx := context.Background()
	repo := &fakeUsageRepo{}
	resolver := &usagePeriodResolver{usageRepo: repo, now: fixedClock(day(2024, 2, 20))}
	sub := &model.Subscription{UserID: "u1", StartedAt: day(2024, 1, 1)}

	first, err := resolver.Resolve(ctx, "u1", model.UsageWritingAI, sub)
	require.NoError(t, err)
	assert.Equal(t, 0, first.UsedCount)
	assert.True(t, day(2024, 1, 31).Equal(first.PeriodStart))
	assert.True(t, day(2024, 3, 1).Equal(first.PeriodEnd))

	second, err := resolver.Resolve(ctx, "u1", model.UsageWritingAI, sub)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.count())
}

func TestUsagePeriodResolver_IgnoresPreviousWindow(t *testing.T) {
	ctx := context.Background()
	repo := &fakeUsageRepo{}
	repo.seed(model.UsageTracking{
		UserID: "u1", UsageType: model.UsageWritingAI,
		PeriodStart: day(2024, 1, 1), PeriodEnd: day(2024, 1, 31), UsedCount: 10,
	})
	resolver := &usagePeriodResolver{usageRepo: repo, now: fixedClock(day(2024, 2, 20))}
	sub := &model.Subscription{UserID: "u1", StartedAt: day(2024, 1, 1)}

	used, err := resolver.UsedInCurrentPeriod(ctx, "u1", model.UsageWritingAI, sub)
	require.NoError(t, err)
	assert.Zero(t, used)
	assert.Equal(t, 1, repo.count(), "read-only lookup must not create rows")
}

func TestUsagePeriodResolver_ConcurrentResolveSharesRow(t *testing.T) {
	ctx := context.Background()
	repo := &fakeUsageRepo{}
	resolver := &usagePeriodResolver{usageRepo: repo, now: fixedClock(day(2024, 2, 20))}
	sub := &model.Subscription{UserID: "u1", StartedAt: day(2024, 1, 1)}

	const workers = 8
	ids := make(chan uint, workers)
	for i := 0; i < workers; i++ {
		go func() {
			row, err := resolver.Resolve(ctx, "u1", model.UsageAITutor, sub)
			if err != nil {
				ids <- 0
				return
			}
			ids <- row.ID
		}()
	}
	seen := map[uint]bool{}
	for i := 0; i < workers; i++ {
		seen[<-ids] = true
	}
	assert.Len(t, seen, 1)
	assert.False(t, seen[0])
	assert.Equal(t, 1, repo.count())
}
