package amm

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xivanov/dex-core/internal/dex"
	"github.com/0xivanov/dex-core/internal/ledger"
	"github.com/0xivanov/dex-core/internal/token"
)

func TestInitializeSortsTokens(t *testing.T) {
	for _, swapOrder := range []bool{false, true} {
		f := newFixture(t, nil)
		a, b := f.tokenA, f.tokenB
		if swapOrder {
			a, b = b, a
		}
		_, err := f.w.Execute(deployer, func(call *ledger.Call) error {
			return f.pool.Initialize(call.As(f.factory), owner, a, b, 3000)
		})
		require.NoError(t, err)

		assert.True(t, f.pool.Initialized())
		assert.Equal(t, -1, bytes.Compare(f.pool.Token0().Bytes(), f.pool.Token1().Bytes()))
		assert.ElementsMatch(t, []common.Address{f.tokenA, f.tokenB}, []common.Address{f.pool.Token0(), f.pool.Token1()})
		assert.Equal(t, owner, f.pool.Owner())
		assert.Equal(t, f.factory, f.pool.Factory())
		assert.Equal(t, uint32(3000), f.pool.Fee())
		assert.True(t, f.pool.Balance0().IsZero())
		assert.True(t, f.pool.Balance1().IsZero())
		assert.True(t, f.pool.TotalShares().IsZero())
	}
}

func TestInitializeRejects(t *testing.T) {
	newOpaque := func(call *ledger.Call) common.Address {
		addr, err := call.Create(func(common.Address) any { return &opaque{} })
		require.NoError(t, err)
		return addr
	}

	cases := []struct {
		name string
		run  func(f *fixture, call *ledger.Call) error
		want error
	}{
		{
			name: "caller is an account",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(alice), owner, f.tokenA, f.tokenB, 3000)
			},
			want: ErrCapabilityProbe,
		},
		{
			name: "caller is an account and owner is zero",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(alice), common.Address{}, f.tokenA, f.tokenB, 0)
			},
			want: ErrCapabilityProbe,
		},
		{
			name: "caller without introspection",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(newOpaque(call)), owner, f.tokenA, f.tokenB, 3000)
			},
			want: ErrCapabilityProbe,
		},
		{
			name: "caller is a token",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(f.tokenA), owner, f.tokenA, f.tokenB, 3000)
			},
			want: ErrInvalidFactory,
		},
		{
			name: "caller is another factory",
			run: func(f *fixture, call *ledger.Call) error {
				other, err := call.Create(fakeFactoryCtor)
				require.NoError(t, err)
				return f.pool.Initialize(call.As(other), owner, f.tokenA, f.tokenB, 3000)
			},
			want: ErrInvalidFactory,
		},
		{
			name: "zero owner",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(f.factory), common.Address{}, f.tokenA, f.tokenA, 0)
			},
			want: ErrInvalidAddress,
		},
		{
			name: "zero token",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(f.factory), owner, common.Address{}, f.tokenB, 3000)
			},
			want: ErrInvalidTokens,
		},
		{
			name: "equal tokens",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(f.factory), owner, f.tokenB, f.tokenB, 3000)
			},
			want: ErrInvalidTokens,
		},
		{
			name: "token is an account",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(f.factory), owner, f.tokenA, bob, 3000)
			},
			want: ErrCapabilityProbe,
		},
		{
			name: "token without introspection",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(f.factory), owner, newOpaque(call), f.tokenB, 3000)
			},
			want: ErrCapabilityProbe,
		},
		{
			name: "token is not fungible",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(f.factory), owner, f.tokenA, f.factory, 3000)
			},
			want: ErrInvalidTokens,
		},
		{
			name: "zero fee",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(f.factory), owner, f.tokenA, f.tokenB, 0)
			},
			want: ErrInvalidFee,
		},
		{
			name: "fee above one percent",
			run: func(f *fixture, call *ledger.Call) error {
				return f.pool.Initialize(call.As(f.factory), owner, f.tokenA, f.tokenB, MaxFee+1)
			},
			want: ErrInvalidFee,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.w.Execute(deployer, func(call *ledger.Call) error {
				return tc.run(f, call)
			})
			require.ErrorIs(t, err, tc.want)
			assert.False(t, f.pool.Initialized())
			assert.Equal(t, common.Address{}, f.pool.Owner())
		})
	}
}

func TestInitializeOnlyOnce(t *testing.T) {
	f := initialized(t, MaxFee)

	attempts := []func(call *ledger.Call) error{
		func(call *ledger.Call) error {
			return f.pool.Initialize(call.As(f.factory), owner, f.tokenA, f.tokenB, MaxFee)
		},
		func(call *ledger.Call) error {
			return f.pool.Initialize(call.As(f.factory), alice, f.tokenB, f.tokenA, 1)
		},
		func(call *ledger.Call) error {
			return f.pool.Initialize(call.As(f.factory), common.Address{}, f.tokenA, f.tokenA, 0)
		},
	}
	for _, attempt := range attempts {
		_, err := f.w.Execute(deployer, attempt)
		require.ErrorIs(t, err, ErrAlreadyInitialized)
	}
	assert.Equal(t, owner, f.pool.Owner())
	assert.Equal(t, uint32(MaxFee), f.pool.Fee())
}

func TestFirstDeposit(t *testing.T) {
	f := initialized(t, 3000)
	f.fund(alice, 10_000)

	minted, err := f.add(alice, 500, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(707), minted.Uint64())
	assert.Equal(t, uint64(707), f.pool.TotalShares().Uint64())
	assert.Equal(t, uint64(707), f.pool.ShareOf(alice).Uint64())
	assert.Equal(t, uint64(500), f.pool.Balance0().Uint64())
	assert.Equal(t, uint64(1000), f.pool.Balance1().Uint64())
	assert.Equal(t, uint64(500), f.balanceOf(f.pool.Token0(), f.pool.Address()))
	assert.Equal(t, uint64(1000), f.balanceOf(f.pool.Token1(), f.pool.Address()))
	assert.Equal(t, uint64(9_500), f.balanceOf(f.pool.Token0(), alice))

	_, err = f.add(alice, 1, 1)
	require.ErrorIs(t, err, ErrInvalidLiquidityAllocation)
	assert.Equal(t, uint64(707), f.pool.TotalShares().Uint64())
	assert.Equal(t, uint64(500), f.pool.Balance0().Uint64())
}

func TestAddLiquidityRejectsZero(t *testing.T) {
	f := initialized(t, 3000)
	f.fund(alice, 10_000)

	for _, amounts := range [][2]uint64{{0, 1}, {1, 0}, {0, 0}} {
		_, err := f.add(alice, amounts[0], amounts[1])
		require.ErrorIs(t, err, ErrInvalidLiquidityAllocation)
	}
	assert.True(t, f.pool.TotalShares().IsZero())
}

func TestSubsequentDepositsMatchRatioExactly(t *testing.T) {
	f := initialized(t, 3000)
	f.fund(alice, 1_000_000)
	_, err := f.add(alice, 500, 1000)
	require.NoError(t, err)

	cases := []struct {
		amount0, amount1 uint64
		accepted         bool
	}{
		{500, 1000, true},
		{501, 1000, false},
		{499, 1000, false},
		{500, 999, false},
		{500, 1001, true},
		{500, 1002, false},
		{1, 2, true},
		{1, 1, false},
		{250, 500, true},
	}
	for _, tc := range cases {
		minted, err := f.tryAdd(alice, tc.amount0, tc.amount1)
		if !tc.accepted {
			assert.ErrorIs(t, err, ErrInvalidLiquidityAllocation, "(%d,%d)", tc.amount0, tc.amount1)
			continue
		}
		require.NoError(t, err, "(%d,%d)", tc.amount0, tc.amount1)
		assert.Equal(t, tc.amount0*707/500, minted.Uint64())
	}

	// Exhaustive check of small deposits against the equality rule.
	for a := uint64(1); a <= 30; a++ {
		for b := uint64(1); b <= 60; b++ {
			shares0, shares1 := a*707/500, b*707/1000
			minted, err := f.tryAdd(alice, a, b)
			if shares0 == shares1 {
				require.NoError(t, err, "(%d,%d)", a, b)
				assert.Equal(t, shares0, minted.Uint64())
			} else {
				require.ErrorIs(t, err, ErrInvalidLiquidityAllocation, "(%d,%d)", a, b)
			}
		}
	}
	assert.Equal(t, uint64(707), f.pool.TotalShares().Uint64())
}

func TestDustDepositMintsZeroShares(t *testing.T) {
	f := initialized(t, 10000)
	f.fund(alice, 1_000_000)
	_, err := f.add(alice, 1000, 1000)
	require.NoError(t, err)

	// Fees push both reserves above the share supply.
	for _, leg := range []struct {
		token  common.Address
		amount uint64
	}{{f.tokenA, 100}, {f.tokenB, 200}, {f.tokenA, 100}} {
		_, err := f.swap(alice, leg.token, leg.amount)
		require.NoError(t, err)
	}
	before0, before1 := f.pool.Balance0().Uint64(), f.pool.Balance1().Uint64()
	require.Greater(t, before0, uint64(1000))
	require.Greater(t, before1, uint64(1000))
	require.Equal(t, uint64(1000), f.pool.TotalShares().Uint64())

	minted, err := f.add(alice, 1, 1)
	require.NoError(t, err)
	assert.True(t, minted.IsZero())
	assert.Equal(t, uint64(1000), f.pool.TotalShares().Uint64())
	assert.Equal(t, uint64(1000), f.pool.ShareOf(alice).Uint64())
	assert.Equal(t, before0+1, f.pool.Balance0().Uint64())
	assert.Equal(t, before1+1, f.pool.Balance1().Uint64())
}

func TestRemoveLiquidityDrainsToZero(t *testing.T) {
	f := initialized(t, 3000)
	f.fund(alice, 10_000)
	f.fund(bob, 10_000)

	_, err := f.add(alice, 500, 1000)
	require.NoError(t, err)
	minted, err := f.add(bob, 500, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(707), minted.Uint64())
	assert.Equal(t, uint64(1414), f.pool.TotalShares().Uint64())

	out0, out1, err := f.remove(alice, 300)
	require.NoError(t, err)
	assert.Equal(t, uint64(300*1000/1414), out0.Uint64())
	assert.Equal(t, uint64(300*2000/1414), out1.Uint64())
	assert.True(t, f.sumShares().Eq(f.pool.TotalShares()))

	_, _, err = f.remove(alice, 407)
	require.NoError(t, err)
	assert.True(t, f.pool.ShareOf(alice).IsZero())
	assert.True(t, f.sumShares().Eq(f.pool.TotalShares()))

	_, _, err = f.remove(bob, 707)
	require.NoError(t, err)
	assert.True(t, f.pool.TotalShares().IsZero())
	assert.True(t, f.pool.Balance0().IsZero())
	assert.True(t, f.pool.Balance1().IsZero())
	assert.Equal(t, uint64(0), f.balanceOf(f.pool.Token0(), f.pool.Address()))
	assert.Equal(t, uint64(20_000), f.balanceOf(f.pool.Token0(), alice)+f.balanceOf(f.pool.Token0(), bob))

	// A drained pool accepts a fresh first deposit at a new ratio.
	minted, err = f.add(alice, 4, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), minted.Uint64())
}

func TestRemoveLiquidityInvalidShare(t *testing.T) {
	f := initialized(t, 3000)
	f.fund(alice, 10_000)
	_, err := f.add(alice, 500, 1000)
	require.NoError(t, err)

	_, _, err = f.remove(alice, 0)
	require.ErrorIs(t, err, ErrInvalidShare)
	_, _, err = f.remove(alice, 708)
	require.ErrorIs(t, err, ErrInvalidShare)
	_, _, err = f.remove(bob, 1)
	require.ErrorIs(t, err, ErrInvalidShare)
	assert.Equal(t, uint64(707), f.pool.ShareOf(alice).Uint64())
}

func TestSwapConcrete(t *testing.T) {
	f := initialized(t, 3000)
	f.fund(alice, 10_000)
	f.fund(bob, 10_000)
	_, err := f.add(alice, 1000, 2000)
	require.NoError(t, err)

	token0, token1 := f.pool.Token0(), f.pool.Token1()
	quote, err := f.pool.Quote(token0, uint256.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(998), quote.Uint64())

	out, err := f.swap(bob, token0, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(998), out.Uint64())
	assert.Equal(t, uint64(2000), f.pool.Balance0().Uint64())
	assert.Equal(t, uint64(1002), f.pool.Balance1().Uint64())
	assert.Equal(t, uint64(9_000), f.balanceOf(token0, bob))
	assert.Equal(t, uint64(10_998), f.balanceOf(token1, bob))
	assert.Equal(t, f.pool.Balance1().Uint64(), f.balanceOf(token1, f.pool.Address()))

	// Reverse direction: 500 of token1 into (2000, 1002).
	withFee := uint64(500 - 500*3000/1_000_000)
	want := withFee * 2000 / (withFee + 1002)
	out, err = f.swap(bob, token1, 500)
	require.NoError(t, err)
	assert.Equal(t, want, out.Uint64())
	assert.Equal(t, uint64(1502), f.pool.Balance1().Uint64())
	assert.Equal(t, 2000-want, f.pool.Balance0().Uint64())
}

func TestSwapRejects(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(bob, 10_000)

	_, err := f.swap(bob, f.tokenA, 10)
	require.ErrorIs(t, err, ErrNotInitialized)

	f.initialize(3000)
	_, err = f.swap(bob, f.tokenA, 10)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = f.swap(bob, alice, 10)
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = f.swap(bob, f.tokenA, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.swap(bob, common.Address{}, 0)
	require.ErrorIs(t, err, ErrInvalidToken)

	assert.Equal(t, uint64(10_000), f.balanceOf(f.tokenA, bob))
}

func TestSwapNeverDecreasesProduct(t *testing.T) {
	f := initialized(t, 3000)
	f.fund(alice, 1_000_000_000)
	f.fund(bob, 1_000_000_000)
	_, err := f.add(alice, 1_000_000, 3_000_000)
	require.NoError(t, err)

	product := func() *big.Int {
		return new(big.Int).Mul(f.pool.Balance0().ToBig(), f.pool.Balance1().ToBig())
	}

	amounts := []uint64{1, 2, 333, 334, 1000, 12_345, 999_999, 5_000_000, 7}
	for i, amount := range amounts {
		tokenIn := f.pool.Token0()
		if i%2 == 1 {
			tokenIn = f.pool.Token1()
		}
		before := product()
		_, err := f.swap(bob, tokenIn, amount)
		require.NoError(t, err)
		after := product()
		assert.GreaterOrEqual(t, after.Cmp(before), 0, "swap %d of %d", i, amount)
	}
	assert.Equal(t, f.pool.Balance0().Uint64(), f.balanceOf(f.pool.Token0(), f.pool.Address()))
	assert.Equal(t, f.pool.Balance1().Uint64(), f.balanceOf(f.pool.Token1(), f.pool.Address()))
}

func TestAddLiquidityOverflow(t *testing.T) {
	f := initialized(t, 3000)
	_, err := f.w.Execute(alice, func(call *ledger.Call) error {
		_, err := f.pool.AddLiquidity(call, new(uint256.Int).SetAllOne(), uint256.NewInt(2))
		return err
	})
	require.ErrorIs(t, err, ErrOverflow)
	assert.True(t, f.pool.TotalShares().IsZero())
}

func TestFeeOnTransferTokenRejected(t *testing.T) {
	sink := common.HexToAddress("0x000000000000000000000000000000000000dead")
	f := newFixture(t, func(i int, tok *token.Token) any {
		if i == 0 {
			return &taxToken{Token: tok, sink: sink}
		}
		return nil
	})
	f.initialize(3000)
	f.fund(alice, 10_000)

	_, err := f.add(alice, 500, 500)
	require.ErrorIs(t, err, ErrTransferMismatch)
	assert.True(t, f.pool.TotalShares().IsZero())
	assert.True(t, f.pool.Balance0().IsZero())
	assert.Equal(t, uint64(10_000), f.balanceOf(f.tokenA, alice))
	assert.Equal(t, uint64(0), f.balanceOf(f.tokenA, sink))
}

func TestReentrantTokenBlocked(t *testing.T) {
	f := newFixture(t, func(i int, tok *token.Token) any {
		if i == 0 {
			return &reentrantToken{Token: tok}
		}
		return nil
	})
	rt := f.tokens[f.tokenA].(*reentrantToken)
	rt.pool = f.pool
	f.initialize(3000)
	f.fund(alice, 10_000)
	_, err := f.add(alice, 1000, 1000)
	require.NoError(t, err)

	rt.armed = true
	_, _, err = f.remove(alice, 100)
	require.ErrorIs(t, err, ErrReentrantCall)

	_, err = f.swap(alice, f.tokenB, 100)
	require.ErrorIs(t, err, ErrReentrantCall)

	assert.Equal(t, uint64(1000), f.pool.ShareOf(alice).Uint64())
	assert.Equal(t, uint64(1000), f.pool.Balance0().Uint64())
	assert.Equal(t, uint64(1000), f.pool.Balance1().Uint64())
	assert.False(t, f.pool.entered)

	rt.armed = false
	_, _, err = f.remove(alice, 100)
	require.NoError(t, err)
}

func TestEventsEmitted(t *testing.T) {
	f := initialized(t, 3000)
	f.fund(alice, 10_000)

	receipt, err := f.w.Execute(alice, func(call *ledger.Call) error {
		_, err := f.pool.AddLiquidity(call, uint256.NewInt(500), uint256.NewInt(1000))
		return err
	})
	require.NoError(t, err)

	poolABI, err := dex.PoolABI()
	require.NoError(t, err)
	event := poolABI.Events["LiquidityAdded"]

	var found bool
	for _, log := range receipt.Logs {
		if log.Address != f.pool.Address() {
			continue
		}
		found = true
		require.Equal(t, event.ID, log.Topics[0])
		assert.Equal(t, common.BytesToHash(alice.Bytes()), log.Topics[1])
		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		require.NoError(t, err)
		require.Len(t, values, 3)
		assert.Equal(t, int64(500), values[0].(*big.Int).Int64())
		assert.Equal(t, int64(1000), values[1].(*big.Int).Int64())
		assert.Equal(t, int64(707), values[2].(*big.Int).Int64())
	}
	assert.True(t, found)
}

func TestSnapshot(t *testing.T) {
	f := initialized(t, 3000)
	f.fund(alice, 10_000)
	_, err := f.add(alice, 500, 1000)
	require.NoError(t, err)

	snap := f.pool.Snapshot()
	assert.Equal(t, f.pool.Address().Hex(), snap.Address)
	assert.Equal(t, "500", snap.Balance0)
	assert.Equal(t, "1000", snap.Balance1)
	assert.Equal(t, "707", snap.TotalShares)
	assert.True(t, snap.Initialized)
}

func TestCloneIsZeroed(t *testing.T) {
	f := initialized(t, 3000)
	clone := f.pool.Clone(alice, bob)
	assert.Equal(t, alice, clone.Address())
	assert.Equal(t, bob, clone.Factory())
	assert.Equal(t, f.pool.Address(), clone.Implementation())
	assert.Equal(t, common.Address{}, f.pool.Implementation())
	assert.False(t, clone.Initialized())
	assert.True(t, clone.TotalShares().IsZero())
}
