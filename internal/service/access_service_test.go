package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lshigami/cefrexam/internal/cache"
	"github.com/lshigami/cefrexam/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accessFixture struct {
	subs      *fakeSubscriptionRepo
	purchases *fakePurchaseRepo
	usage     *fakeUsageRepo
	publisher *recordingPublisher
	svc       *accessService
	now       time.Time
}

func newAccessFixture(now time.Time) *accessFixture {
	f := &accessFixture{
		subs:      &fakeSubscriptionRepo{},
		purchases: &fakePurchaseRepo{},
		usage:     &fakeUsageRepo{},
		publisher: &recordingPublisher{},
		now:       now,
	}
	f.svc = &accessService{
		subscriptionRepo: f.subs,
		purchaseRepo:     f.purchases,
		usageRepo:        f.usage,
		periods:          &usagePeriodResolver{usageRepo: f.usage, now: fixedClock(now)},
		cache:            cache.NewRedisCache(nil, "access:"),
		cacheTTL:         time.Minute,
		publisher:        f.publisher,
		now:              fixedClock(now),
	}
	return f
}

func (f *accessFixture) withPro(userID string, startedAt time.Time) *accessFixture {
	f.subs.subs = append(f.subs.subs, model.Subscription{
		ID: uint(len(f.subs.subs) + 1), UserID: userID, PlanType: model.PlanPro, Status: "active",
		StartedAt: startedAt, ExpiresAt: startedAt.AddDate(1, 0, 0),
	})
	return f
}

func (f *accessFixture) withPurchase(userID string, remaining int, expires time.Time) *accessFixture {
	f.purchases.purchases = append(f.purchases.purchases, model.Purchase{
		ID: uint(len(f.purchases.purchases) + 1), UserID: userID, ProductType: model.ProductMockExam,
		RemainingUses: remaining, ExpiresAt: expires,
	})
	return f
}

func (f *accessFixture) withProUsage(userID string, usageType model.UsageType, used int) *accessFixture {
	start, end := CurrentUsagePeriod(f.subs.subs[0].StartedAt, f.now)
	f.usage.seed(model.UsageTracking{UserID: userID, UsageType: usageType, PeriodStart: start, PeriodEnd: end, UsedCount: used})
	return f
}

func TestGetUserPlanType(t *testing.T) {
	ctx := context.Background()
	now := day(2024, 2, 20)

	f := newAccessFixture(now)
	assert.Equal(t, model.PlanFree, f.svc.GetUserPlanType(ctx, "nobody"))

	f.withPurchase("std", 2, now.AddDate(0, 1, 0))
	assert.Equal(t, model.PlanStandard, f.svc.GetUserPlanType(ctx, "std"))

	f.withPurchase("expired", 2, now.AddDate(0, 0, -1))
	assert.Equal(t, model.PlanFree, f.svc.GetUserPlanType(ctx, "expired"))

	f.withPro("pro", day(2024, 1, 1)).withPurchase("pro", 1, now.AddDate(0, 1, 0))
	assert.Equal(t, model.PlanPro, f.svc.GetUserPlanType(ctx, "pro"), "pro wins over standard")
}

func TestGetUserPlanType_LookupErrorFailsClosed(t *testing.T) {
	f := newAccessFixture(day(2024, 2, 20))
	f.subs.err = errBoom
	assert.Equal(t, model.PlanFree, f.svc.GetUserPlanType(context.Background(), "u1"))
}

func TestAccessMatrix(t *testing.T) {
	ctx := context.Background()
	now := day(2024, 2, 20)

	f := newAccessFixture(now).
		withPro("pro", day(2024, 1, 1)).
		withPurchase("std", 3, now.AddDate(0, 1, 0))

	cases := []struct {
		name   string
		decide func(context.Context, string) AccessDecision
		free   bool
		std    bool
		pro    bool
	}{
		{"full access", f.svc.HasFullAccess, false, false, true},
		{"mock exam", f.svc.CanStartMockExam, false, true, true},
		{"writing", f.svc.CanUseWritingAI, true, false, true},
		{"speaking", f.svc.CanUseSpeakingAI, true, false, true},
		{"tutor", f.svc.CanUseAITutor, false, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			free := tc.decide(ctx, "free")
			assert.Equal(t, tc.free, free.Allowed)
			assert.Equal(t, model.PlanFree, free.PlanType)

			std := tc.decide(ctx, "std")
			assert.Equal(t, tc.std, std.Allowed)
			assert.Equal(t, model.PlanStandard, std.PlanType)

			pro := tc.decide(ctx, "pro")
			assert.Equal(t, tc.pro, pro.Allowed)
			assert.Equal(t, model.PlanPro, pro.PlanType)

			for _, d := range []AccessDecision{free, std, pro} {
				if !d.Allowed {
					assert.NotEmpty(t, d.Reason)
					assert.True(t, IsAccessDenied(d.Err()))
				} else {
					assert.NoError(t, d.Err())
				}
			}
		})
	}
}

func TestProWritingQuotaBoundary(t *testing.T) {
	ctx := context.Background()
	now := day(2024, 2, 20)

	nine := newAccessFixture(now).withPro("pro", day(2024, 1, 1)).withProUsage("pro", model.UsageWritingAI, 9)
	assert.True(t, nine.svc.CanUseWritingAI(ctx, "pro").Allowed)

	ten := newAccessFixture(now).withPro("pro", day(2024, 1, 1)).withProUsage("pro", model.UsageWritingAI, 10)
	decision := ten.svc.CanUseWritingAI(ctx, "pro")
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "10/10")
}

func TestProQuotaResetsInNextPeriod(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(day(2024, 2, 20)).withPro("pro", day(2024, 1, 1))
	// Exhausted in the first window, which has already closed.
	f.usage.seed(model.UsageTracking{
		UserID: "pro", UsageType: model.UsageMockExam,
		PeriodStart: day(2024, 1, 1), PeriodEnd: day(2024, 1, 31), UsedCount: 3,
	})
	assert.True(t, f.svc.CanStartMockExam(ctx, "pro").Allowed)
}

func TestFreeDemoIsLifetime(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(day(2024, 2, 20))

	require.True(t, f.svc.CanUseWritingAI(ctx, "free").Allowed)
	require.NoError(t, f.svc.RecordWritingAIUsage(ctx, "free"))
	assert.False(t, f.svc.CanUseWritingAI(ctx, "free").Allowed)

	// Years later the demo is still spent.
	later := newAccessFixture(day(2030, 6, 1))
	later.svc.usageRepo = f.usage
	assert.False(t, later.svc.CanUseWritingAI(ctx, "free").Allowed)

	// Speaking has its own demo.
	assert.True(t, f.svc.CanUseSpeakingAI(ctx, "free").Allowed)

	require.Len(t, f.usage.rows, 1)
	assert.True(t, FreeDemoPeriodStart.Equal(f.usage.rows[0].PeriodStart))
	assert.True(t, FreeDemoPeriodEnd.Equal(f.usage.rows[0].PeriodEnd))
}

func TestChecksHaveNoSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(day(2024, 2, 20)).withPro("pro", day(2024, 1, 1))

	for i := 0; i < 3; i++ {
		f.svc.CanUseWritingAI(ctx, "pro")
		f.svc.CanUseAITutor(ctx, "pro")
	}
	_, err := f.svc.GetAccessStatus(ctx, "pro")
	require.NoError(t, err)
	assert.Zero(t, f.usage.count())
}

func TestRecordProUsageIncrementsCurrentPeriod(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(day(2024, 2, 20)).withPro("pro", day(2024, 1, 1))

	require.NoError(t, f.svc.RecordAITutorUsage(ctx, "pro"))
	require.NoError(t, f.svc.RecordAITutorUsage(ctx, "pro"))

	require.Len(t, f.usage.rows, 1)
	row := f.usage.rows[0]
	assert.Equal(t, 2, row.UsedCount)
	assert.True(t, day(2024, 1, 31).Equal(row.PeriodStart))

	require.Len(t, f.publisher.usage, 2)
	assert.Equal(t, "ai_tutor", f.publisher.usage[0].UsageType)
	assert.Equal(t, "pro", f.publisher.usage[0].PlanType)
}

func TestRecordMockExamUsage_StandardConsumesEarliestExpiry(t *testing.T) {
	ctx := context.Background()
	now := day(2024, 2, 20)
	f := newAccessFixture(now).
		withPurchase("std", 2, now.AddDate(0, 2, 0)).
		withPurchase("std", 1, now.AddDate(0, 1, 0))

	require.NoError(t, f.svc.RecordMockExamUsage(ctx, "std"))
	assert.Equal(t, 2, f.purchases.purchases[0].RemainingUses)
	assert.Equal(t, 0, f.purchases.purchases[1].RemainingUses)

	require.NoError(t, f.svc.RecordMockExamUsage(ctx, "std"))
	assert.Equal(t, 1, f.purchases.purchases[0].RemainingUses)
}

func TestRecordOnPlanWithoutFeatureIsNoop(t *testing.T) {
	ctx := context.Background()
	now := day(2024, 2, 20)
	f := newAccessFixture(now).withPurchase("std", 1, now.AddDate(0, 1, 0))

	require.NoError(t, f.svc.RecordWritingAIUsage(ctx, "std"))
	require.NoError(t, f.svc.RecordAITutorUsage(ctx, "free"))
	assert.Zero(t, f.usage.count())
	assert.Empty(t, f.publisher.usage)
}

func TestGetAccessStatus_Pro(t *testing.T) {
	ctx := context.Background()
	f := newAccessFixture(day(2024, 2, 20)).
		withPro("pro", day(2024, 1, 1)).
		withProUsage("pro", model.UsageSpeakingAI, 6)

	status, err := f.svc.GetAccessStatus(ctx, "pro")
	require.NoError(t, err)
	assert.Equal(t, "pro", status.PlanType)
	require.NotNil(t, status.Subscription)
	assert.Equal(t, 6, status.Usage.SpeakingAI.Used)
	assert.Equal(t, 6, status.Usage.SpeakingAI.Limit)
	assert.Equal(t, 50, status.Usage.AITutor.Limit)
	assert.True(t, status.Access.FullAccess)
	assert.True(t, status.Access.WritingAI)
	assert.False(t, status.Access.SpeakingAI)
}

func TestGetAccessStatus_FreeAndStandard(t *testing.T) {
	ctx := context.Background()
	now := day(2024, 2, 20)
	f := newAccessFixture(now).withPurchase("std", 4, now.AddDate(0, 1, 0))

	free, err := f.svc.GetAccessStatus(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, "free", free.PlanType)
	assert.Nil(t, free.Subscription)
	assert.Equal(t, 1, free.Usage.WritingAI.Limit)
	assert.True(t, free.Access.WritingAI)
	assert.False(t, free.Access.MockExam)

	std, err := f.svc.GetAccessStatus(ctx, "std")
	require.NoError(t, err)
	assert.Equal(t, "standard", std.PlanType)
	assert.Equal(t, 4, std.Purchases.TotalRemaining)
	require.NotNil(t, std.Purchases.NearestExpiry)
	assert.True(t, std.Access.MockExam)
	assert.False(t, std.Access.WritingAI)
}

func TestGetAccessStatus_CachedAndInvalidatedOnRecord(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newAccessFixture(day(2024, 2, 20)).withPro("pro", day(2024, 1, 1))
	f.svc.cache = cache.NewRedisCache(client, "access:")

	first, err := f.svc.GetAccessStatus(ctx, "pro")
	require.NoError(t, err)
	assert.True(t, mr.Exists("access:status:pro"))
	assert.Zero(t, first.Usage.WritingAI.Used)

	require.NoError(t, f.svc.RecordWritingAIUsage(ctx, "pro"))
	assert.False(t, mr.Exists("access:status:pro"))

	second, err := f.svc.GetAccessStatus(ctx, "pro")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Usage.WritingAI.Used)
}
