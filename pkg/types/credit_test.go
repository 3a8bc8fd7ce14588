package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreditType_Valid(t *testing.T) {
	require.True(t, CreditTypeBC.Valid())
	require.True(t, CreditTypeRC.Valid())
	require.True(t, CreditTypeUsage.Valid())
	require.False(t, CreditType("karma").Valid())
	require.False(t, CreditType("").Valid())
}

func TestOverageChargeStatus_CanTransitionTo(t *testing.T) {
	require.True(t, OverageChargeStatusPending.CanTransitionTo(OverageChargeStatusInvoiced))
	require.True(t, OverageChargeStatusPending.CanTransitionTo(OverageChargeStatusWaived))
	require.True(t, OverageChargeStatusInvoiced.CanTransitionTo(OverageChargeStatusPaid))
	require.True(t, OverageChargeStatusInvoiced.CanTransitionTo(OverageChargeStatusWaived))

	require.False(t, OverageChargeStatusPending.CanTransitionTo(OverageChargeStatusPaid))
	require.False(t, OverageChargeStatusPaid.CanTransitionTo(OverageChargeStatusPending))
	require.False(t, OverageChargeStatusWaived.CanTransitionTo(OverageChargeStatusPaid))
}
