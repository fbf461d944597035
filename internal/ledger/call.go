package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Call is one frame of a transaction. Sender is the immediate caller of the
// contract code running in this frame.
type Call struct {
	tx     *txState
	sender common.Address
}

// Sender returns msg.sender for this frame.
func (c *Call) Sender() common.Address {
	return c.sender
}

// Origin returns the account that sent the transaction.
func (c *Call) Origin() common.Address {
	return c.tx.origin
}

// As opens a nested frame in which addr is the sender. A contract uses it
// when calling out to another contract.
func (c *Call) As(addr common.Address) *Call {
	return &Call{tx: c.tx, sender: addr}
}

// Contract resolves a deployed contract.
func (c *Call) Contract(addr common.Address) (any, bool) {
	contract, ok := c.tx.world.contracts[addr]
	return contract, ok
}

// Timestamp returns the timestamp the pending block will carry.
func (c *Call) Timestamp() uint64 {
	return c.tx.world.timestamp + c.tx.world.cfg.BlockTime
}

// Record registers an undo function run if the transaction reverts.
func (c *Call) Record(undo func()) {
	c.tx.journal = append(c.tx.journal, undo)
}

// Log appends an event log emitted by addr.
func (c *Call) Log(addr common.Address, topics []common.Hash, data []byte) {
	c.tx.logs = append(c.tx.logs, types.Log{
		Address: addr,
		Topics:  topics,
		Data:    data,
	})
}

// Create deploys the contract built by ctor at the CREATE address of the
// sender.
func (c *Call) Create(ctor func(self common.Address) any) (common.Address, error) {
	world := c.tx.world
	nonce := world.nonces[c.sender]
	addr := crypto.CreateAddress(c.sender, nonce)
	SetMapEntry(c, world.nonces, c.sender, nonce+1)
	if err := c.deploy(addr, ctor); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// Create2 deploys the contract built by ctor at the CREATE2 address derived
// from the sender, salt and init code hash.
func (c *Call) Create2(salt [32]byte, initCodeHash common.Hash, ctor func(self common.Address) any) (common.Address, error) {
	addr := crypto.CreateAddress2(c.sender, salt, initCodeHash.Bytes())
	if err := c.deploy(addr, ctor); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

func (c *Call) deploy(addr common.Address, ctor func(self common.Address) any) error {
	world := c.tx.world
	if _, exists := world.contracts[addr]; exists {
		return fmt.Errorf("%w: %s", ErrAddressInUse, addr.Hex())
	}
	SetMapEntry(c, world.contracts, addr, ctor(addr))
	return nil
}

// Set assigns v to *ptr and journals the previous value.
func Set[T any](c *Call, ptr *T, v T) {
	old := *ptr
	c.Record(func() { *ptr = old })
	*ptr = v
}

// SetMapEntry assigns m[k] = v and journals the previous entry.
func SetMapEntry[K comparable, V any](c *Call, m map[K]V, k K, v V) {
	old, existed := m[k]
	c.Record(func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

// Lookup resolves the contract at addr as T.
func Lookup[T any](c *Call, addr common.Address) (T, error) {
	var zero T
	contract, ok := c.Contract(addr)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNoContract, addr.Hex())
	}
	typed, ok := contract.(T)
	if !ok {
		return zero, fmt.Errorf("contract at %s is %T", addr.Hex(), contract)
	}
	return typed, nil
}
