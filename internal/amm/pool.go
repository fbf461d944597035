// Package amm implements a two-asset constant-product liquidity pool.
//
// Pools have no locks. Every mutating method takes a *ledger.Call and must run
// inside a ledger transaction, which serializes callers and rolls back all
// state on error.
package amm

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/0xivanov/dex-core/internal/capability"
	"github.com/0xivanov/dex-core/internal/ledger"
	"github.com/0xivanov/dex-core/internal/model"
)

// Pool holds reserves of two assets and the share ledger of its providers.
type Pool struct {
	address        common.Address
	factory        common.Address
	implementation common.Address

	owner       common.Address
	token0      common.Address
	token1      common.Address
	fee         uint32
	balance0    *uint256.Int
	balance1    *uint256.Int
	totalShares *uint256.Int
	shares      map[common.Address]*uint256.Int
	initialized bool
	entered     bool
}

// NewPool builds an uninitialized pool at address that only factory may
// initialize.
func NewPool(address, factory common.Address) *Pool {
	return &Pool{
		address:     address,
		factory:     factory,
		balance0:    zero(),
		balance1:    zero(),
		totalShares: zero(),
		shares:      make(map[common.Address]*uint256.Int),
	}
}

// Clone returns a fresh pool deployed at self and bound to factory that
// delegates to this pool as its implementation. No state is copied.
func (p *Pool) Clone(self, factory common.Address) *Pool {
	clone := NewPool(self, factory)
	clone.implementation = p.address
	return clone
}

// Initialize records the pool's owner, canonical token pair and fee. It may
// only be called once, by the recorded factory.
func (p *Pool) Initialize(call *ledger.Call, owner, tokenA, tokenB common.Address, fee uint32) error {
	caller, _ := call.Contract(call.Sender())
	switch capability.Probe(caller, capability.PoolFactory) {
	case capability.ProbeFailed:
		return fmt.Errorf("%w: caller %s", ErrCapabilityProbe, call.Sender().Hex())
	case capability.Unsupported:
		return ErrInvalidFactory
	}
	if call.Sender() != p.factory {
		return ErrInvalidFactory
	}
	if p.initialized {
		return ErrAlreadyInitialized
	}
	if owner == (common.Address{}) {
		return ErrInvalidAddress
	}
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) || tokenA == tokenB {
		return ErrInvalidTokens
	}
	for _, token := range []common.Address{tokenA, tokenB} {
		contract, _ := call.Contract(token)
		switch capability.Probe(contract, capability.ERC20) {
		case capability.ProbeFailed:
			return fmt.Errorf("%w: token %s", ErrCapabilityProbe, token.Hex())
		case capability.Unsupported:
			return ErrInvalidTokens
		}
	}
	if !ValidFee(fee) {
		return ErrInvalidFee
	}

	token0, token1 := SortTokens(tokenA, tokenB)
	ledger.Set(call, &p.owner, owner)
	ledger.Set(call, &p.token0, token0)
	ledger.Set(call, &p.token1, token1)
	ledger.Set(call, &p.fee, fee)
	ledger.Set(call, &p.initialized, true)
	return nil
}

// AddLiquidity deposits amount0 of token0 and amount1 of token1 from the
// caller and mints shares to it. Deposits into a funded pool must match the
// current reserve ratio exactly at share resolution.
func (p *Pool) AddLiquidity(call *ledger.Call, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	if isZero(amount0) || isZero(amount1) {
		return nil, ErrInvalidLiquidityAllocation
	}
	if err := p.enter(call); err != nil {
		return nil, err
	}

	var minted *uint256.Int
	if p.totalShares.IsZero() {
		shares, err := InitialShares(amount0, amount1)
		if err != nil {
			return nil, err
		}
		minted = shares
	} else {
		shares0, shares1, err := MatchedShares(amount0, amount1, p.balance0, p.balance1, p.totalShares)
		if err != nil {
			return nil, err
		}
		if !shares0.Eq(shares1) {
			return nil, fmt.Errorf("%w: shares %s != %s", ErrInvalidLiquidityAllocation, shares0.Dec(), shares1.Dec())
		}
		minted = shares0
	}

	provider := call.Sender()
	if err := p.mint(call, provider, minted); err != nil {
		return nil, err
	}
	if err := p.credit(call, amount0, amount1); err != nil {
		return nil, err
	}
	if err := p.pull(call, p.token0, provider, amount0); err != nil {
		return nil, fmt.Errorf("pull token0: %w", err)
	}
	if err := p.pull(call, p.token1, provider, amount1); err != nil {
		return nil, fmt.Errorf("pull token1: %w", err)
	}

	if err := p.emit(call, "LiquidityAdded", provider, amount0.ToBig(), amount1.ToBig(), minted.ToBig()); err != nil {
		return nil, err
	}
	p.exit(call)
	return minted.Clone(), nil
}

// RemoveLiquidity burns share of the caller's shares and pays out the
// proportional part of both reserves.
func (p *Pool) RemoveLiquidity(call *ledger.Call, share *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	provider := call.Sender()
	if isZero(share) || share.Gt(p.ShareOf(provider)) {
		return nil, nil, ErrInvalidShare
	}
	if err := p.enter(call); err != nil {
		return nil, nil, err
	}

	amount0, err := Payout(share, p.balance0, p.totalShares)
	if err != nil {
		return nil, nil, err
	}
	amount1, err := Payout(share, p.balance1, p.totalShares)
	if err != nil {
		return nil, nil, err
	}

	if err := p.burn(call, provider, share); err != nil {
		return nil, nil, err
	}
	if err := p.debit(call, amount0, amount1); err != nil {
		return nil, nil, err
	}
	if err := p.push(call, p.token0, provider, amount0); err != nil {
		return nil, nil, fmt.Errorf("push token0: %w", err)
	}
	if err := p.push(call, p.token1, provider, amount1); err != nil {
		return nil, nil, fmt.Errorf("push token1: %w", err)
	}

	if err := p.emit(call, "LiquidityRemoved", provider, amount0.ToBig(), amount1.ToBig(), share.ToBig()); err != nil {
		return nil, nil, err
	}
	p.exit(call)
	return amount0, amount1, nil
}

// Swap sells amountIn of tokenIn to the pool for the other asset. The full
// amountIn joins the input reserve; the fee stays in the pool as reserve
// growth.
func (p *Pool) Swap(call *ledger.Call, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	zeroForOne, err := p.direction(tokenIn)
	if err != nil {
		return nil, err
	}
	if isZero(amountIn) {
		return nil, ErrInvalidAmount
	}
	if err := p.enter(call); err != nil {
		return nil, err
	}

	balanceIn, balanceOut := p.balance0, p.balance1
	tokenOut := p.token1
	if !zeroForOne {
		balanceIn, balanceOut = p.balance1, p.balance0
		tokenOut = p.token0
	}

	amountOut, err := SwapAmountOut(amountIn, balanceIn, balanceOut, p.fee)
	if err != nil {
		return nil, err
	}

	if zeroForOne {
		if err := p.credit(call, amountIn, zero()); err != nil {
			return nil, err
		}
		if err := p.debit(call, zero(), amountOut); err != nil {
			return nil, err
		}
	} else {
		if err := p.credit(call, zero(), amountIn); err != nil {
			return nil, err
		}
		if err := p.debit(call, amountOut, zero()); err != nil {
			return nil, err
		}
	}

	trader := call.Sender()
	if err := p.pull(call, tokenIn, trader, amountIn); err != nil {
		return nil, fmt.Errorf("pull input: %w", err)
	}
	if err := p.push(call, tokenOut, trader, amountOut); err != nil {
		return nil, fmt.Errorf("push output: %w", err)
	}

	if err := p.emit(call, "Swap", tokenIn, amountIn.ToBig(), amountOut.ToBig()); err != nil {
		return nil, err
	}
	p.exit(call)
	return amountOut, nil
}

// Quote previews the output of Swap against the current reserves.
func (p *Pool) Quote(tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	zeroForOne, err := p.direction(tokenIn)
	if err != nil {
		return nil, err
	}
	if isZero(amountIn) {
		return nil, ErrInvalidAmount
	}
	if zeroForOne {
		return SwapAmountOut(amountIn, p.balance0, p.balance1, p.fee)
	}
	return SwapAmountOut(amountIn, p.balance1, p.balance0, p.fee)
}

// SortTokens returns a and b in canonical order.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}

func (p *Pool) Address() common.Address   { return p.address }
func (p *Pool) Factory() common.Address   { return p.factory }
func (p *Pool) Owner() common.Address     { return p.owner }
func (p *Pool) Token0() common.Address    { return p.token0 }
func (p *Pool) Token1() common.Address    { return p.token1 }
func (p *Pool) Fee() uint32               { return p.fee }
func (p *Pool) Initialized() bool         { return p.initialized }
func (p *Pool) Balance0() *uint256.Int    { return p.balance0.Clone() }
func (p *Pool) Balance1() *uint256.Int    { return p.balance1.Clone() }
func (p *Pool) TotalShares() *uint256.Int { return p.totalShares.Clone() }

// Implementation returns the template a clone delegates to, or the zero
// address for a pool deployed directly.
func (p *Pool) Implementation() common.Address { return p.implementation }

// ShareOf returns the shares held by holder.
func (p *Pool) ShareOf(holder common.Address) *uint256.Int {
	if shares, ok := p.shares[holder]; ok {
		return shares.Clone()
	}
	return zero()
}

// Snapshot returns a copy of the pool's current state.
func (p *Pool) Snapshot() model.PoolState {
	return model.PoolState{
		Address:     p.address.Hex(),
		Factory:     p.factory.Hex(),
		Owner:       p.owner.Hex(),
		Token0:      p.token0.Hex(),
		Token1:      p.token1.Hex(),
		Fee:         p.fee,
		Balance0:    p.balance0.Dec(),
		Balance1:    p.balance1.Dec(),
		TotalShares: p.totalShares.Dec(),
		Initialized: p.initialized,
	}
}

func (p *Pool) direction(tokenIn common.Address) (zeroForOne bool, err error) {
	switch tokenIn {
	case p.token0:
		return true, nil
	case p.token1:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrInvalidToken, tokenIn.Hex())
	}
}

func (p *Pool) enter(call *ledger.Call) error {
	if p.entered {
		return ErrReentrantCall
	}
	ledger.Set(call, &p.entered, true)
	return nil
}

func (p *Pool) exit(call *ledger.Call) {
	ledger.Set(call, &p.entered, false)
}

func (p *Pool) mint(call *ledger.Call, holder common.Address, amount *uint256.Int) error {
	total, err := add(p.totalShares, amount)
	if err != nil {
		return err
	}
	held, err := add(p.ShareOf(holder), amount)
	if err != nil {
		return err
	}
	ledger.Set(call, &p.totalShares, total)
	ledger.SetMapEntry(call, p.shares, holder, held)
	return nil
}

func (p *Pool) burn(call *ledger.Call, holder common.Address, amount *uint256.Int) error {
	total, err := sub(p.totalShares, amount)
	if err != nil {
		return err
	}
	held, err := sub(p.ShareOf(holder), amount)
	if err != nil {
		return err
	}
	ledger.Set(call, &p.totalShares, total)
	ledger.SetMapEntry(call, p.shares, holder, held)
	return nil
}

func (p *Pool) credit(call *ledger.Call, amount0, amount1 *uint256.Int) error {
	balance0, err := add(p.balance0, amount0)
	if err != nil {
		return err
	}
	balance1, err := add(p.balance1, amount1)
	if err != nil {
		return err
	}
	ledger.Set(call, &p.balance0, balance0)
	ledger.Set(call, &p.balance1, balance1)
	return nil
}

func (p *Pool) debit(call *ledger.Call, amount0, amount1 *uint256.Int) error {
	balance0, err := sub(p.balance0, amount0)
	if err != nil {
		return err
	}
	balance1, err := sub(p.balance1, amount1)
	if err != nil {
		return err
	}
	ledger.Set(call, &p.balance0, balance0)
	ledger.Set(call, &p.balance1, balance1)
	return nil
}

// pull moves amount of token from holder into the pool and checks the pool's
// balance grew by exactly amount.
func (p *Pool) pull(call *ledger.Call, token, holder common.Address, amount *uint256.Int) error {
	asset, err := ledger.Lookup[Asset](call, token)
	if err != nil {
		return err
	}
	before := asset.BalanceOf(p.address)
	if err := asset.TransferFrom(call.As(p.address), holder, p.address, amount); err != nil {
		return err
	}
	after := asset.BalanceOf(p.address)
	received, underflow := new(uint256.Int).SubOverflow(after, before)
	if underflow || !received.Eq(amount) {
		return fmt.Errorf("%w: expected %s, received %s", ErrTransferMismatch, amount.Dec(), received.Dec())
	}
	return nil
}

func (p *Pool) push(call *ledger.Call, token, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	asset, err := ledger.Lookup[Asset](call, token)
	if err != nil {
		return err
	}
	return asset.Transfer(call.As(p.address), to, amount)
}
