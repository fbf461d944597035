package amm

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/0xivanov/dex-core/internal/capability"
	"github.com/0xivanov/dex-core/internal/ledger"
	"github.com/0xivanov/dex-core/internal/token"
)

var (
	deployer = common.HexToAddress("0x00000000000000000000000000000000000de910")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	owner    = common.HexToAddress("0x000000000000000000000000000000000000beef")

	errRollback = errors.New("rollback")
)

type fakeFactory struct {
	capability.Declared
}

func fakeFactoryCtor(common.Address) any {
	return &fakeFactory{Declared: capability.Declared{capability.PoolFactory}}
}

// opaque is a contract with no introspection.
type opaque struct{}

// taxToken delivers one unit less than requested on TransferFrom.
type taxToken struct {
	*token.Token
	sink common.Address
}

func (t *taxToken) TransferFrom(call *ledger.Call, from, to common.Address, amount *uint256.Int) error {
	if amount.IsUint64() && amount.Uint64() <= 1 {
		return t.Token.TransferFrom(call, from, to, amount)
	}
	if err := t.Token.TransferFrom(call, from, to, new(uint256.Int).SubUint64(amount, 1)); err != nil {
		return err
	}
	return t.Token.TransferFrom(call, from, t.sink, uint256.NewInt(1))
}

// reentrantToken calls back into the pool while paying out.
type reentrantToken struct {
	*token.Token
	pool  *Pool
	armed bool
}

func (t *reentrantToken) Transfer(call *ledger.Call, to common.Address, amount *uint256.Int) error {
	if t.armed {
		if _, err := t.pool.Swap(call, t.Address(), uint256.NewInt(1)); err != nil {
			return err
		}
	}
	return t.Token.Transfer(call, to, amount)
}

type fixture struct {
	t       *testing.T
	w       *ledger.World
	factory common.Address
	pool    *Pool
	tokens  map[common.Address]Asset
	tokenA  common.Address
	tokenB  common.Address
}

// newFixture deploys a fake factory, two tokens and an uninitialized pool.
// wrap may replace the token built at index 0 or 1.
func newFixture(t *testing.T, wrap func(i int, tok *token.Token) any) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		w:      ledger.NewWorld(ledger.Config{ChainID: 1337, GenesisTime: 1_700_000_000}, nil),
		tokens: make(map[common.Address]Asset),
	}
	var poolAddr common.Address
	_, err := f.w.Execute(deployer, func(call *ledger.Call) error {
		var err error
		if f.factory, err = call.Create(fakeFactoryCtor); err != nil {
			return err
		}
		addrs := make([]common.Address, 2)
		for i := range addrs {
			i := i
			addrs[i], err = call.Create(func(self common.Address) any {
				tok := token.New(self, "Token", "TKN", 18)
				if wrap != nil {
					if wrapped := wrap(i, tok); wrapped != nil {
						return wrapped
					}
				}
				return tok
			})
			if err != nil {
				return err
			}
		}
		f.tokenA, f.tokenB = addrs[0], addrs[1]
		poolAddr, err = call.Create(func(self common.Address) any { return NewPool(self, f.factory) })
		return err
	})
	require.NoError(t, err)

	contract, ok := f.w.Contract(poolAddr)
	require.True(t, ok)
	f.pool = contract.(*Pool)
	for _, addr := range []common.Address{f.tokenA, f.tokenB} {
		contract, ok := f.w.Contract(addr)
		require.True(t, ok)
		f.tokens[addr] = contract.(Asset)
	}
	return f
}

// initialized returns a fixture whose pool is initialized with fee.
func initialized(t *testing.T, fee uint32) *fixture {
	t.Helper()
	f := newFixture(t, nil)
	f.initialize(fee)
	return f
}

func (f *fixture) initialize(fee uint32) {
	f.t.Helper()
	_, err := f.w.Execute(deployer, func(call *ledger.Call) error {
		return f.pool.Initialize(call.As(f.factory), owner, f.tokenA, f.tokenB, fee)
	})
	require.NoError(f.t, err)
}

type minter interface {
	Mint(call *ledger.Call, amount *uint256.Int) error
	Approve(call *ledger.Call, spender common.Address, amount *uint256.Int) error
}

// fund mints amount of both tokens to who and approves the pool.
func (f *fixture) fund(who common.Address, amount uint64) {
	f.t.Helper()
	_, err := f.w.Execute(who, func(call *ledger.Call) error {
		for _, addr := range []common.Address{f.tokenA, f.tokenB} {
			tok := f.tokens[addr].(minter)
			if err := tok.Mint(call, uint256.NewInt(amount)); err != nil {
				return err
			}
			if err := tok.Approve(call, f.pool.Address(), new(uint256.Int).SetAllOne()); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(f.t, err)
}

func (f *fixture) add(who common.Address, amount0, amount1 uint64) (*uint256.Int, error) {
	var minted *uint256.Int
	_, err := f.w.Execute(who, func(call *ledger.Call) error {
		var err error
		minted, err = f.pool.AddLiquidity(call, uint256.NewInt(amount0), uint256.NewInt(amount1))
		return err
	})
	return minted, err
}

func (f *fixture) remove(who common.Address, share uint64) (*uint256.Int, *uint256.Int, error) {
	var out0, out1 *uint256.Int
	_, err := f.w.Execute(who, func(call *ledger.Call) error {
		var err error
		out0, out1, err = f.pool.RemoveLiquidity(call, uint256.NewInt(share))
		return err
	})
	return out0, out1, err
}

func (f *fixture) swap(who, tokenIn common.Address, amountIn uint64) (*uint256.Int, error) {
	var out *uint256.Int
	_, err := f.w.Execute(who, func(call *ledger.Call) error {
		var err error
		out, err = f.pool.Swap(call, tokenIn, uint256.NewInt(amountIn))
		return err
	})
	return out, err
}

// tryAdd runs AddLiquidity and always rolls it back.
func (f *fixture) tryAdd(who common.Address, amount0, amount1 uint64) (*uint256.Int, error) {
	var minted *uint256.Int
	_, err := f.w.Execute(who, func(call *ledger.Call) error {
		var err error
		minted, err = f.pool.AddLiquidity(call, uint256.NewInt(amount0), uint256.NewInt(amount1))
		if err != nil {
			return err
		}
		return errRollback
	})
	if errors.Is(err, errRollback) {
		return minted, nil
	}
	return nil, err
}

func (f *fixture) balanceOf(tok, holder common.Address) uint64 {
	return f.tokens[tok].BalanceOf(holder).Uint64()
}

func (f *fixture) sumShares() *uint256.Int {
	sum := new(uint256.Int)
	for _, held := range f.pool.shares {
		sum.Add(sum, held)
	}
	return sum
}
