// Package ledger provides an in-process execution environment for contracts.
//
// A World serializes transactions: exactly one runs at a time, every state
// mutation made through a Call is journaled, and a failing transaction is
// rolled back completely, including its logs. Contracts therefore need no
// locks of their own.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

var (
	ErrAddressInUse = errors.New("address already in use")
	ErrPanic        = errors.New("transaction panicked")
	ErrNoContract   = errors.New("no contract at address")
)

// Config controls chain identity and the block clock.
type Config struct {
	ChainID     uint64
	GenesisTime uint64
	BlockTime   uint64
}

// Receipt describes a committed transaction. Every committed transaction is
// sealed into its own block.
type Receipt struct {
	BlockNumber uint64
	BlockHash   common.Hash
	Timestamp   uint64
	TxHash      common.Hash
	TxIndex     uint
	From        common.Address
	Logs        []types.Log
}

// World holds deployed contracts and the committed log history.
type World struct {
	mu        sync.Mutex
	cfg       Config
	contracts map[common.Address]any
	nonces    map[common.Address]uint64
	block     uint64
	timestamp uint64
	receipts  []Receipt
	logger    *zap.Logger
}

// NewWorld builds an empty world.
func NewWorld(cfg Config, logger *zap.Logger) *World {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BlockTime == 0 {
		cfg.BlockTime = 12
	}
	return &World{
		cfg:       cfg,
		contracts: make(map[common.Address]any),
		nonces:    make(map[common.Address]uint64),
		timestamp: cfg.GenesisTime,
		logger:    logger,
	}
}

// ChainID returns the configured chain id.
func (w *World) ChainID() uint64 {
	return w.cfg.ChainID
}

// GenesisTime returns the timestamp of block zero.
func (w *World) GenesisTime() uint64 {
	return w.cfg.GenesisTime
}

// Execute runs fn as a single transaction sent by from. If fn returns an
// error or panics, every journaled mutation is undone and no logs are kept.
func (w *World) Execute(from common.Address, fn func(call *Call) error) (receipt Receipt, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx := &txState{world: w, origin: from}
	call := &Call{tx: tx, sender: from}

	defer func() {
		if r := recover(); r != nil {
			tx.revert()
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			w.logger.Warn("transaction reverted", zap.String("from", from.Hex()), zap.Error(err))
		}
	}()

	if err := fn(call); err != nil {
		tx.revert()
		w.logger.Debug("transaction reverted", zap.String("from", from.Hex()), zap.Error(err))
		return Receipt{}, err
	}

	receipt = w.seal(tx)
	w.logger.Debug("transaction committed",
		zap.String("from", from.Hex()),
		zap.Uint64("block", receipt.BlockNumber),
		zap.Int("logs", len(receipt.Logs)),
	)
	return receipt, nil
}

// View runs fn against the current state without opening a transaction.
// Mutations made inside fn are rolled back.
func (w *World) View(fn func(call *Call) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx := &txState{world: w}
	defer tx.revert()
	return fn(&Call{tx: tx})
}

// Contract returns the contract deployed at addr.
func (w *World) Contract(addr common.Address) (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.contracts[addr]
	return c, ok
}

// Receipts returns all committed receipts in order.
func (w *World) Receipts() []Receipt {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Receipt, len(w.receipts))
	copy(out, w.receipts)
	return out
}

// ReceiptAt returns the receipt sealed into block number.
func (w *World) ReceiptAt(number uint64) (Receipt, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if number == 0 || number > uint64(len(w.receipts)) {
		return Receipt{}, false
	}
	return w.receipts[number-1], true
}

// BlockNumber returns the number of the latest sealed block.
func (w *World) BlockNumber() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.block
}

func (w *World) seal(tx *txState) Receipt {
	w.block++
	w.timestamp += w.cfg.BlockTime

	var header [24]byte
	binary.BigEndian.PutUint64(header[0:8], w.cfg.ChainID)
	binary.BigEndian.PutUint64(header[8:16], w.block)
	binary.BigEndian.PutUint64(header[16:24], w.timestamp)
	blockHash := crypto.Keccak256Hash(header[:])
	txHash := crypto.Keccak256Hash(blockHash.Bytes(), tx.origin.Bytes())

	logs := make([]types.Log, 0, len(tx.logs))
	for i, log := range tx.logs {
		log.BlockNumber = w.block
		log.BlockHash = blockHash
		log.TxHash = txHash
		log.TxIndex = 0
		log.Index = uint(i)
		logs = append(logs, log)
	}

	receipt := Receipt{
		BlockNumber: w.block,
		BlockHash:   blockHash,
		Timestamp:   w.timestamp,
		TxHash:      txHash,
		From:        tx.origin,
		Logs:        logs,
	}
	w.receipts = append(w.receipts, receipt)
	return receipt
}

type txState struct {
	world   *World
	origin  common.Address
	journal []func()
	logs    []types.Log
}

func (t *txState) revert() {
	for i := len(t.journal) - 1; i >= 0; i-- {
		t.journal[i]()
	}
	t.journal = nil
	t.logs = nil
}
