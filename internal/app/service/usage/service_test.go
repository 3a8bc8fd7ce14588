package usage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundCreditAmount(t *testing.T) {
	require.Equal(t, 0, roundCreditAmount(0))
	require.Equal(t, 0, roundCreditAmount(0.4))
	require.Equal(t, 1, roundCreditAmount(0.5))
	require.Equal(t, 2, roundCreditAmount(2.49))
	require.Equal(t, 3, roundCreditAmount(2.51))
	require.Equal(t, 0, roundCreditAmount(-1.7))
}
