package ledger

import (
	"testing"
	"time"

	models "github.com/fatflowers/allowance/internal/models"
	"github.com/stretchr/testify/require"
)

func ts(day int) time.Time {
	return time.Date(2026, 9, day, 0, 0, 0, 0, time.UTC)
}

func tsp(day int) *time.Time {
	t := ts(day)
	return &t
}

func TestDrainPools_RolloverBeforeAllowance(t *testing.T) {
	buckets := []*models.RolloverBucket{
		{ID: "b1", Remain: 50, ExpiresAt: tsp(10), CreatedAt: ts(1)},
	}
	allowances := []*models.Allowance{
		{ID: "a1", Total: 100, Used: 0, CreatedAt: ts(1)},
	}

	out := drainPools(buckets, allowances, 30)
	require.Equal(t, 30, out.deducted)
	require.Equal(t, 0, out.remaining)
	require.Equal(t, 20, buckets[0].Remain)
	require.Equal(t, 0, allowances[0].Used)
	require.Len(t, out.touchedBuckets, 1)
	require.Empty(t, out.touchedAllowances)
}

func TestDrainPools_SpillsIntoAllowance(t *testing.T) {
	buckets := []*models.RolloverBucket{
		{ID: "b1", Remain: 50, ExpiresAt: tsp(10), CreatedAt: ts(1)},
	}
	allowances := []*models.Allowance{
		{ID: "a1", Total: 100, Used: 0, CreatedAt: ts(1)},
	}

	out := drainPools(buckets, allowances, 120)
	require.Equal(t, 120, out.deducted)
	require.Equal(t, 0, out.remaining)
	require.Equal(t, 0, buckets[0].Remain)
	require.Equal(t, 70, allowances[0].Used)
	require.Equal(t, "a1", out.lastAllowance.ID)
}

func TestDrainPools_PartialWhenEverythingDry(t *testing.T) {
	buckets := []*models.RolloverBucket{
		{ID: "b1", Remain: 10, CreatedAt: ts(1)},
	}
	allowances := []*models.Allowance{
		{ID: "a1", Total: 20, Used: 15, CreatedAt: ts(1)},
	}

	out := drainPools(buckets, allowances, 100)
	require.Equal(t, 15, out.deducted)
	require.Equal(t, 85, out.remaining)
	require.Equal(t, 0, buckets[0].Remain)
	require.Equal(t, 20, allowances[0].Used)
}

func TestDrainPools_SoonestExpiryFirst(t *testing.T) {
	buckets := []*models.RolloverBucket{
		{ID: "late", Remain: 40, ExpiresAt: tsp(20), CreatedAt: ts(1)},
		{ID: "soon", Remain: 40, ExpiresAt: tsp(5), CreatedAt: ts(2)},
		{ID: "never", Remain: 40, ExpiresAt: nil, CreatedAt: ts(3)},
	}

	out := drainPools(buckets, nil, 50)
	require.Equal(t, 50, out.deducted)

	byID := map[string]int{}
	for _, b := range buckets {
		byID[b.ID] = b.Remain
	}
	require.Equal(t, 0, byID["soon"])
	require.Equal(t, 30, byID["late"])
	require.Equal(t, 40, byID["never"])
}

func TestDrainPools_ZeroRemainBucketsSkipped(t *testing.T) {
	buckets := []*models.RolloverBucket{
		{ID: "empty", Remain: 0, ExpiresAt: tsp(1), CreatedAt: ts(1)},
		{ID: "full", Remain: 5, ExpiresAt: tsp(2), CreatedAt: ts(2)},
	}

	out := drainPools(buckets, nil, 5)
	require.Equal(t, 5, out.deducted)
	require.Len(t, out.touchedBuckets, 1)
	require.Equal(t, "full", out.touchedBuckets[0].ID)
}

func TestResolveFallback_FreeTierTakesAutofix(t *testing.T) {
	sub := &models.UserSubscription{PaygEnabled: true}
	plan := &models.Plan{Name: "Free"}

	// Free tier wins even when PAYG would also be possible.
	decision := resolveFallback(sub, plan, 10, true)
	require.Equal(t, fallbackAutofix, decision.kind)
}

func TestResolveFallback_PaygBillsExactGap(t *testing.T) {
	sub := &models.UserSubscription{PaygEnabled: true}
	plan := &models.Plan{Name: "Pro"}

	decision := resolveFallback(sub, plan, 85, true)
	require.Equal(t, fallbackOverage, decision.kind)
	require.Equal(t, 85, decision.overageAmount)
}

func TestResolveFallback_PaygVetoNeedsConfirmation(t *testing.T) {
	sub := &models.UserSubscription{PaygEnabled: true}
	plan := &models.Plan{Name: "Pro"}

	decision := resolveFallback(sub, plan, 85, false)
	require.Equal(t, fallbackPaygConfirm, decision.kind)
	require.Equal(t, 0, decision.overageAmount)
}

func TestResolveFallback_Exhausted(t *testing.T) {
	// No subscription at all.
	require.Equal(t, fallbackExhausted, resolveFallback(nil, nil, 10, true).kind)

	// Paid plan with PAYG turned off.
	sub := &models.UserSubscription{PaygEnabled: false}
	plan := &models.Plan{Name: "Pro"}
	require.Equal(t, fallbackExhausted, resolveFallback(sub, plan, 10, true).kind)
}

func TestResolveFallback_NoRemainderNoFallback(t *testing.T) {
	sub := &models.UserSubscription{PaygEnabled: true}
	require.Equal(t, fallbackNone, resolveFallback(sub, &models.Plan{Name: "Free"}, 0, true).kind)
}

func TestDrainThenFallback_OverageCoversShortfall(t *testing.T) {
	buckets := []*models.RolloverBucket{
		{ID: "b1", Remain: 10, ExpiresAt: tsp(10), CreatedAt: ts(1)},
	}
	allowances := []*models.Allowance{
		{ID: "a1", Total: 20, Used: 15, CreatedAt: ts(1)},
	}

	outcome := drainPools(buckets, allowances, 100)
	require.Equal(t, 15, outcome.deducted)

	sub := &models.UserSubscription{PaygEnabled: true}
	decision := resolveFallback(sub, &models.Plan{Name: "Scale"}, outcome.remaining, true)
	require.Equal(t, fallbackOverage, decision.kind)
	require.Equal(t, 85, decision.overageAmount)
}

func TestAutofixCap_FourthGrantDenied(t *testing.T) {
	// Three consecutive free-tier waivers pass the gate applyAutofix uses;
	// the fourth trips the daily cap.
	counter := &models.AllowanceDailyAutofix{Limit: 3}
	for i := 0; i < 3; i++ {
		require.False(t, counter.Exhausted())
		counter.Consumed++
	}
	require.True(t, counter.Exhausted())
}

func TestReplayedResult_NoRededuction(t *testing.T) {
	original := &models.ConsumptionEvent{ID: "ev1", ActionHash: "h1", Amount: 30, Deducted: 30}

	for i := 0; i < 3; i++ {
		res := replayedResult(original)
		require.True(t, res.Replayed)
		require.Equal(t, "ev1", res.Event.ID)
		require.Equal(t, 30, res.Deducted)
	}
	// The source row never changes.
	require.Equal(t, 30, original.Deducted)
}

func TestBuildEvent_KeepsCallerHash(t *testing.T) {
	req := &ConsumeRequest{UserID: "u1", Action: "auto_fix", Amount: 10, ActionHash: "caller-hash"}
	event := buildEvent(req, drainOutcome{deducted: 10}, &ConsumptionResult{}, ts(1))
	require.Equal(t, "caller-hash", event.ActionHash)
	require.Equal(t, 10, event.Deducted)
}

func TestBuildEvent_GeneratesHashWhenAbsent(t *testing.T) {
	req := &ConsumeRequest{UserID: "u1", Action: "auto_fix", Amount: 10}
	event := buildEvent(req, drainOutcome{deducted: 10}, &ConsumptionResult{}, ts(1))
	require.NotEmpty(t, event.ActionHash)
	require.Contains(t, event.ActionHash, "u1:auto_fix:")
}

func TestDrainBefore_Ordering(t *testing.T) {
	// nil expiry sorts last; equal expiry falls back to creation order.
	require.True(t, drainBefore(tsp(5), ts(1), tsp(10), ts(1)))
	require.False(t, drainBefore(tsp(10), ts(1), tsp(5), ts(1)))
	require.True(t, drainBefore(tsp(5), ts(1), nil, ts(1)))
	require.False(t, drainBefore(nil, ts(1), tsp(5), ts(1)))
	require.True(t, drainBefore(tsp(5), ts(1), tsp(5), ts(2)))
	require.True(t, drainBefore(nil, ts(1), nil, ts(2)))
	require.False(t, drainBefore(nil, ts(2), nil, ts(1)))
}
