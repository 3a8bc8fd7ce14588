package models

import (
	"errors"
	"testing"
	"time"

	"github.com/fatflowers/allowance/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestOverageChargeTransition_Lifecycle(t *testing.T) {
	at := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	charge := &OverageCharge{ID: "oc1", Status: types.OverageChargeStatusPending}

	require.NoError(t, charge.Transition(types.OverageChargeStatusInvoiced, at))
	require.Equal(t, types.OverageChargeStatusInvoiced, charge.Status)
	require.Equal(t, at, *charge.InvoicedAt)

	paidAt := at.Add(time.Hour)
	require.NoError(t, charge.Transition(types.OverageChargeStatusPaid, paidAt))
	require.Equal(t, paidAt, *charge.SettledAt)
}

func TestOverageChargeTransition_RejectsBackward(t *testing.T) {
	at := time.Now()
	charge := &OverageCharge{ID: "oc1", Status: types.OverageChargeStatusPaid}

	err := charge.Transition(types.OverageChargeStatusPending, at)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidChargeTransition))
	require.Equal(t, types.OverageChargeStatusPaid, charge.Status)
}

func TestOverageChargeTransition_WaiveFromPendingAndInvoiced(t *testing.T) {
	at := time.Now()

	pending := &OverageCharge{Status: types.OverageChargeStatusPending}
	require.NoError(t, pending.Transition(types.OverageChargeStatusWaived, at))

	invoiced := &OverageCharge{Status: types.OverageChargeStatusInvoiced}
	require.NoError(t, invoiced.Transition(types.OverageChargeStatusWaived, at))
}

func TestAllowanceRemaining_NeverNegative(t *testing.T) {
	a := &Allowance{Total: 100, Used: 120}
	require.Equal(t, 0, a.Remaining())

	a = &Allowance{Total: 100, Used: 30}
	require.Equal(t, 70, a.Remaining())
}

func TestAllowanceExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.True(t, (&Allowance{ExpiresAt: &past}).Expired(now))
	require.False(t, (&Allowance{ExpiresAt: &future}).Expired(now))
	require.False(t, (&Allowance{}).Expired(now))
}

func TestPlanUsageQuota(t *testing.T) {
	plan := &Plan{RCMonthly: 6000, UsageBonusRate: 0.2}
	require.Equal(t, 1200, plan.UsageQuota())
}
