package amm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestValidFee(t *testing.T) {
	cases := []struct {
		fee  uint32
		want bool
	}{
		{0, false},
		{1, true},
		{3000, true},
		{10_000, true},
		{10_001, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidFee(tc.fee), "fee %d", tc.fee)
	}
}

func TestInitialShares(t *testing.T) {
	cases := []struct {
		a, b, want uint64
	}{
		{500, 1000, 707},
		{1, 1, 1},
		{1000, 2000, 1414},
		{4, 9, 6},
		{1, 3, 1},
	}
	for _, tc := range cases {
		got, err := InitialShares(u(tc.a), u(tc.b))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Uint64(), "sqrt(%d*%d)", tc.a, tc.b)
	}

	_, err := InitialShares(new(uint256.Int).SetAllOne(), u(2))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMatchedShares(t *testing.T) {
	shares0, shares1, err := MatchedShares(u(1), u(1), u(500), u(1000), u(707))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), shares0.Uint64())
	assert.Equal(t, uint64(0), shares1.Uint64())

	shares0, shares1, err = MatchedShares(u(500), u(1000), u(500), u(1000), u(707))
	require.NoError(t, err)
	assert.Equal(t, uint64(707), shares0.Uint64())
	assert.True(t, shares0.Eq(shares1))

	_, _, err = MatchedShares(u(1), u(1), u(0), u(1000), u(707))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSwapAmountOut(t *testing.T) {
	out, err := SwapAmountOut(u(1000), u(1000), u(2000), 3000)
	require.NoError(t, err)
	assert.Equal(t, uint64(998), out.Uint64())

	fee, err := FeeAmount(u(1000), 3000)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), fee.Uint64())

	// Amounts below 1e6/fee pay no fee at all.
	fee, err = FeeAmount(u(333), 3000)
	require.NoError(t, err)
	assert.True(t, fee.IsZero())

	_, err = SwapAmountOut(u(1), u(0), u(100), 3000)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = SwapAmountOut(new(uint256.Int).SetAllOne(), u(1), u(1), 3000)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestPayout(t *testing.T) {
	got, err := Payout(u(300), u(1000), u(1414))
	require.NoError(t, err)
	assert.Equal(t, uint64(212), got.Uint64())

	got, err = Payout(u(1414), u(1000), u(1414))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), got.Uint64())
}
