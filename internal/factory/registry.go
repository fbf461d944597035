// Package factory implements the pool registry: one pool per canonical token
// pair and fee, deployed as a clone of a pool template.
package factory

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xivanov/dex-core/internal/amm"
	"github.com/0xivanov/dex-core/internal/capability"
	"github.com/0xivanov/dex-core/internal/dex"
	"github.com/0xivanov/dex-core/internal/ledger"
)

var (
	ErrPoolExists            = errors.New("pool already exists")
	ErrInvalidImplementation = errors.New("invalid implementation")
	ErrNotOwner              = errors.New("caller is not the owner")
	ErrNotPendingOwner       = errors.New("caller is not the pending owner")
)

// PoolKey identifies a pool. Token0 < Token1.
type PoolKey struct {
	Token0 common.Address
	Token1 common.Address
	Fee    uint32
}

// NewPoolKey canonicalizes a token pair.
func NewPoolKey(tokenA, tokenB common.Address, fee uint32) PoolKey {
	token0, token1 := amm.SortTokens(tokenA, tokenB)
	return PoolKey{Token0: token0, Token1: token1, Fee: fee}
}

// Registry deploys and indexes pools. It declares the pool factory
// interface, which pools require of their initializer.
type Registry struct {
	capability.Declared

	address      common.Address
	owner        common.Address
	pendingOwner common.Address
	pools        map[PoolKey]common.Address
	allPools     []common.Address
}

// New builds a registry at address owned by owner.
func New(address, owner common.Address) *Registry {
	return &Registry{
		Declared: capability.Declared{capability.PoolFactory},
		address:  address,
		owner:    owner,
		pools:    make(map[PoolKey]common.Address),
	}
}

// Deploy creates a registry owned by the sender of call.
func Deploy(call *ledger.Call) (common.Address, error) {
	owner := call.Sender()
	return call.Create(func(self common.Address) any {
		return New(self, owner)
	})
}

func (r *Registry) Address() common.Address      { return r.address }
func (r *Registry) Owner() common.Address        { return r.owner }
func (r *Registry) PendingOwner() common.Address { return r.pendingOwner }

// CreatePool clones implementation for the pair and fee, initializes it with
// the caller as pool owner and records it. Anyone may create a pool.
func (r *Registry) CreatePool(call *ledger.Call, implementation, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	key := NewPoolKey(tokenA, tokenB, fee)
	if existing, ok := r.pools[key]; ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrPoolExists, existing.Hex())
	}
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) || tokenA == tokenB {
		return common.Address{}, amm.ErrInvalidTokens
	}

	frame := call.As(r.address)
	pool, err := clonePool(frame, implementation, PoolSalt(key))
	if err != nil {
		return common.Address{}, err
	}
	if err := pool.Initialize(frame, call.Sender(), tokenA, tokenB, fee); err != nil {
		return common.Address{}, fmt.Errorf("initialize pool: %w", err)
	}

	addr := pool.Address()
	ledger.SetMapEntry(call, r.pools, key, addr)
	ledger.Set(call, &r.allPools, append(r.allPools[:len(r.allPools):len(r.allPools)], addr))

	if err := r.emit(call, "PoolCreated", key.Token0, key.Token1, new(big.Int).SetUint64(uint64(fee)), addr); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// GetPool returns the pool for the pair in either order, or the zero
// address.
func (r *Registry) GetPool(tokenA, tokenB common.Address, fee uint32) common.Address {
	return r.pools[NewPoolKey(tokenA, tokenB, fee)]
}

// AllPools returns every created pool in creation order.
func (r *Registry) AllPools() []common.Address {
	out := make([]common.Address, len(r.allPools))
	copy(out, r.allPools)
	return out
}

// PredictPoolAddress returns where CreatePool would deploy the pool.
func (r *Registry) PredictPoolAddress(implementation, tokenA, tokenB common.Address, fee uint32) common.Address {
	return PredictAddress(r.address, implementation, PoolSalt(NewPoolKey(tokenA, tokenB, fee)))
}

// TransferOwnership hands the registry to newOwner. With direct set the
// transfer is immediate; otherwise newOwner becomes pending and must call
// ClaimOwnership. A zero pending owner cancels a pending transfer.
func (r *Registry) TransferOwnership(call *ledger.Call, newOwner common.Address, direct bool) error {
	if call.Sender() != r.owner {
		return ErrNotOwner
	}
	if !direct {
		ledger.Set(call, &r.pendingOwner, newOwner)
		return nil
	}
	if newOwner == (common.Address{}) {
		return amm.ErrInvalidAddress
	}
	return r.setOwner(call, newOwner)
}

// ClaimOwnership completes a two-step transfer.
func (r *Registry) ClaimOwnership(call *ledger.Call) error {
	if r.pendingOwner == (common.Address{}) || call.Sender() != r.pendingOwner {
		return ErrNotPendingOwner
	}
	return r.setOwner(call, r.pendingOwner)
}

func (r *Registry) setOwner(call *ledger.Call, newOwner common.Address) error {
	old := r.owner
	ledger.Set(call, &r.owner, newOwner)
	ledger.Set(call, &r.pendingOwner, common.Address{})
	return r.emit(call, "OwnershipTransferred", old, newOwner)
}

func (r *Registry) emit(call *ledger.Call, name string, args ...interface{}) error {
	factoryABI, err := dex.FactoryABI()
	if err != nil {
		return fmt.Errorf("parse factory abi: %w", err)
	}
	topics, data, err := dex.EncodeEvent(factoryABI, name, args...)
	if err != nil {
		return err
	}
	call.Log(r.address, topics, data)
	return nil
}
