package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetRechargePackage(t *testing.T) {
	cfg := &Config{Billing: BillingConfig{RechargePackages: defaultRechargePackages()}}

	pkg := cfg.GetRechargePackage("creator")
	require.NotNil(t, pkg)
	require.Equal(t, 1500, pkg.Credits)
	require.Equal(t, 129, pkg.PriceUSD)

	require.Nil(t, cfg.GetRechargePackage("nonexistent"))
}

func TestGetUsageCost(t *testing.T) {
	cfg := &Config{Billing: BillingConfig{UsageCosts: map[string]int{"act_execution": 25}}}

	require.Equal(t, 25, cfg.GetUsageCost("act_execution", 1))
	require.Equal(t, 7, cfg.GetUsageCost("unknown_action", 7))
}

func TestDefaultRechargePackages(t *testing.T) {
	pkgs := defaultRechargePackages()
	require.Len(t, pkgs, 3)
	require.Equal(t, "starter", pkgs[0].ID)
	require.Equal(t, 500, pkgs[0].Credits)
	require.Equal(t, 4000, pkgs[2].Credits)
}
