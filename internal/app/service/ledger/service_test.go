package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	models "github.com/fatflowers/allowance/internal/models"
	types "github.com/fatflowers/allowance/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestErrAllowanceExhausted_IsWrapFriendly(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrAllowanceExhausted)
	require.True(t, errors.Is(err, ErrAllowanceExhausted))
}

func TestRolloverBucketFor_OneCycle(t *testing.T) {
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	prior := &models.Allowance{ID: "a1", UserID: "u1", Total: 400, Used: 150}

	bucket := rolloverBucketFor(prior, &periodEnd, types.RolloverPolicyOneCycle)
	require.NotNil(t, bucket)
	require.Equal(t, 250, bucket.Remain)
	require.Equal(t, "a1", bucket.AllowanceID)
	require.Equal(t, periodEnd.Add(30*24*time.Hour), *bucket.ExpiresAt)
}

func TestRolloverBucketFor_Annual(t *testing.T) {
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	prior := &models.Allowance{ID: "a1", UserID: "u1", Total: 100, Used: 40}

	bucket := rolloverBucketFor(prior, &periodEnd, types.RolloverPolicyAnnual)
	require.NotNil(t, bucket)
	require.Equal(t, 60, bucket.Remain)
	require.Equal(t, periodEnd.Add(365*24*time.Hour), *bucket.ExpiresAt)
}

func TestRolloverBucketFor_NonePolicy(t *testing.T) {
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	prior := &models.Allowance{ID: "a1", Total: 400, Used: 150}

	require.Nil(t, rolloverBucketFor(prior, &periodEnd, types.RolloverPolicyNone))
	require.Nil(t, rolloverBucketFor(prior, &periodEnd, ""))
}

func TestRolloverBucketFor_NothingLeft(t *testing.T) {
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	prior := &models.Allowance{ID: "a1", Total: 400, Used: 400}

	require.Nil(t, rolloverBucketFor(prior, &periodEnd, types.RolloverPolicyOneCycle))
}

func TestRolloverExpiry_NilPeriodEnd(t *testing.T) {
	require.Nil(t, rolloverExpiry(nil, types.RolloverPolicyOneCycle))
}
