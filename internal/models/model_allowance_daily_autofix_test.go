package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAutofixExhausted_AtLimit(t *testing.T) {
	counter := &AllowanceDailyAutofix{Consumed: 2, Limit: 3}
	require.False(t, counter.Exhausted())

	counter.Consumed++
	require.True(t, counter.Exhausted())
}

func TestDateKeyFor_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 02:00 on the 2nd in UTC+9 is still the 1st in UTC.
	at := time.Date(2026, 9, 2, 2, 0, 0, 0, loc)
	require.Equal(t, "2026-09-01", DateKeyFor(at))
}
