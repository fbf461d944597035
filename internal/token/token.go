// Package token provides a standard fungible token contract for the ledger.
package token

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/0xivanov/dex-core/internal/capability"
	"github.com/0xivanov/dex-core/internal/dex"
	"github.com/0xivanov/dex-core/internal/ledger"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidReceiver       = errors.New("invalid receiver")
	ErrOverflow              = errors.New("token arithmetic overflow")
)

var maxAllowance = new(uint256.Int).SetAllOne()

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Token is an ERC-20 token. Anyone may mint to themselves.
type Token struct {
	capability.Declared

	address     common.Address
	name        string
	symbol      string
	decimals    uint8
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[allowanceKey]*uint256.Int
}

// New builds an empty token deployed at address.
func New(address common.Address, name, symbol string, decimals uint8) *Token {
	return &Token{
		Declared:    capability.Declared{capability.ERC20},
		address:     address,
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[allowanceKey]*uint256.Int),
	}
}

// Constructor adapts New for ledger deployment.
func Constructor(name, symbol string, decimals uint8) func(self common.Address) any {
	return func(self common.Address) any {
		return New(self, name, symbol, decimals)
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

// TotalSupply returns the number of tokens in existence.
func (t *Token) TotalSupply() *uint256.Int {
	return t.totalSupply.Clone()
}

// BalanceOf returns the balance of holder.
func (t *Token) BalanceOf(holder common.Address) *uint256.Int {
	if balance, ok := t.balances[holder]; ok {
		return balance.Clone()
	}
	return new(uint256.Int)
}

// Allowance returns how much spender may move on behalf of owner.
func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	if allowance, ok := t.allowances[allowanceKey{owner, spender}]; ok {
		return allowance.Clone()
	}
	return new(uint256.Int)
}

// Mint creates amount tokens for the caller.
func (t *Token) Mint(call *ledger.Call, amount *uint256.Int) error {
	supply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	if overflow {
		return ErrOverflow
	}
	to := call.Sender()
	balance, overflow := new(uint256.Int).AddOverflow(t.BalanceOf(to), amount)
	if overflow {
		return ErrOverflow
	}
	ledger.Set(call, &t.totalSupply, supply)
	ledger.SetMapEntry(call, t.balances, to, balance)
	return t.emit(call, "Transfer", common.Address{}, to, amount.ToBig())
}

// Transfer moves amount from the caller to to.
func (t *Token) Transfer(call *ledger.Call, to common.Address, amount *uint256.Int) error {
	return t.move(call, call.Sender(), to, amount)
}

// TransferFrom moves amount from from to to, spending the caller's
// allowance. An allowance of 2^256-1 is never decreased.
func (t *Token) TransferFrom(call *ledger.Call, from, to common.Address, amount *uint256.Int) error {
	spender := call.Sender()
	allowance := t.Allowance(from, spender)
	if !allowance.Eq(maxAllowance) {
		remaining, underflow := new(uint256.Int).SubOverflow(allowance, amount)
		if underflow {
			return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientAllowance, spender.Hex(), allowance.Dec(), amount.Dec())
		}
		ledger.SetMapEntry(call, t.allowances, allowanceKey{from, spender}, remaining)
	}
	return t.move(call, from, to, amount)
}

// Approve sets the caller's allowance for spender.
func (t *Token) Approve(call *ledger.Call, spender common.Address, amount *uint256.Int) error {
	return t.approve(call, call.Sender(), spender, amount.Clone())
}

// IncreaseAllowance raises the caller's allowance for spender by added.
func (t *Token) IncreaseAllowance(call *ledger.Call, spender common.Address, added *uint256.Int) error {
	owner := call.Sender()
	allowance, overflow := new(uint256.Int).AddOverflow(t.Allowance(owner, spender), added)
	if overflow {
		return ErrOverflow
	}
	return t.approve(call, owner, spender, allowance)
}

func (t *Token) approve(call *ledger.Call, owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return ErrInvalidReceiver
	}
	ledger.SetMapEntry(call, t.allowances, allowanceKey{owner, spender}, amount)
	return t.emit(call, "Approval", owner, spender, amount.ToBig())
}

func (t *Token) move(call *ledger.Call, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidReceiver
	}
	fromBalance := t.BalanceOf(from)
	remaining, underflow := new(uint256.Int).SubOverflow(fromBalance, amount)
	if underflow {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance.Dec(), amount.Dec())
	}
	ledger.SetMapEntry(call, t.balances, from, remaining)

	toBalance, overflow := new(uint256.Int).AddOverflow(t.BalanceOf(to), amount)
	if overflow {
		return ErrOverflow
	}
	ledger.SetMapEntry(call, t.balances, to, toBalance)
	return t.emit(call, "Transfer", from, to, amount.ToBig())
}

func (t *Token) emit(call *ledger.Call, name string, args ...interface{}) error {
	erc20ABI, err := dex.ERC20ABI()
	if err != nil {
		return fmt.Errorf("parse erc20 abi: %w", err)
	}
	topics, data, err := dex.EncodeEvent(erc20ABI, name, args...)
	if err != nil {
		return err
	}
	call.Log(t.address, topics, data)
	return nil
}
