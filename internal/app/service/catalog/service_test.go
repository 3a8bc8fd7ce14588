package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPlanSeeds_StableIdentifiers(t *testing.T) {
	byName := map[string]PlanSeed{}
	for _, s := range DefaultPlanSeeds {
		byName[s.Name] = s
	}

	require.Len(t, DefaultPlanSeeds, 4)
	require.Equal(t, "11111111-1111-1111-1111-111111111111", byName["Free"].ID)
	require.Equal(t, "22222222-2222-2222-2222-222222222222", byName["Pro"].ID)
	require.Equal(t, "33333333-3333-3333-3333-333333333333", byName["Scale"].ID)
	require.Equal(t, "44444444-4444-4444-4444-444444444444", byName["Enterprise"].ID)
}

func TestDefaultPlanSeeds_Quotas(t *testing.T) {
	byName := map[string]PlanSeed{}
	for _, s := range DefaultPlanSeeds {
		byName[s.Name] = s
	}

	pro := byName["Pro"]
	require.Equal(t, 400, pro.BCMonthly)
	require.Equal(t, 6000, pro.RCMonthly)
	require.Equal(t, float64(89), pro.PriceUSD)
	require.Equal(t, 1, pro.TrialDays)

	scale := byName["Scale"]
	require.Equal(t, 1000, scale.BCMonthly)
	require.Equal(t, 12000, scale.RCMonthly)
	require.Equal(t, float64(225), scale.PriceUSD)

	free := byName["Free"]
	require.Equal(t, 0, free.BCMonthly)
	require.True(t, free.PaygEnabled)
}

func TestPlanSeedToModel_UsageQuota(t *testing.T) {
	for _, seed := range DefaultPlanSeeds {
		plan := seed.toModel()
		require.True(t, plan.IsActive)
		require.Equal(t, int(float64(seed.RCMonthly)*seed.UsageBonusRate), plan.UsageQuota())
	}
}
