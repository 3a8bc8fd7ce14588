package subscription

import (
	"testing"
	"time"

	models "github.com/fatflowers/allowance/internal/models"
	types "github.com/fatflowers/allowance/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestAllowanceSpecs_FullTier(t *testing.T) {
	plan := &models.Plan{
		ID:             "22222222-2222-2222-2222-222222222222",
		Name:           "Pro",
		BCMonthly:      400,
		RCMonthly:      6000,
		UsageBonusRate: 0.2,
	}
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	specs := allowanceSpecs(plan, periodEnd)
	require.Len(t, specs, 3)

	byType := map[types.CreditType]int{}
	for _, spec := range specs {
		byType[spec.Type] = spec.Total
		require.Equal(t, plan.ID, *spec.PlanID)
		require.Equal(t, periodEnd, *spec.ExpiresAt)
	}
	require.Equal(t, 400, byType[types.CreditTypeBC])
	require.Equal(t, 6000, byType[types.CreditTypeRC])
	require.Equal(t, 1200, byType[types.CreditTypeUsage])
}

func TestAllowanceSpecs_UsagePoolNeverRollsOver(t *testing.T) {
	plan := &models.Plan{ID: "p", BCMonthly: 100, RCMonthly: 1000, UsageBonusRate: 0.2}
	periodEnd := time.Now().Add(30 * 24 * time.Hour)

	for _, spec := range allowanceSpecs(plan, periodEnd) {
		if spec.Type == types.CreditTypeUsage {
			require.Equal(t, types.RolloverPolicyNone, spec.RolloverPolicy)
		} else {
			require.Equal(t, types.RolloverPolicyOneCycle, spec.RolloverPolicy)
		}
	}
}

func TestAllowanceSpecs_NoUsagePoolForFreeTier(t *testing.T) {
	plan := &models.Plan{ID: "f", Name: "Free", BCMonthly: 0, RCMonthly: 0, UsageBonusRate: 0.2}
	specs := allowanceSpecs(plan, time.Now())
	require.Len(t, specs, 2)
}

func TestSubscriptionLive(t *testing.T) {
	require.True(t, (&models.UserSubscription{Status: types.SubscriptionStatusActive}).Live())
	require.True(t, (&models.UserSubscription{Status: types.SubscriptionStatusTrialing}).Live())
	require.False(t, (&models.UserSubscription{Status: types.SubscriptionStatusCanceled}).Live())
}
