package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/0xivanov/dex-core/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	ChainID          uint64
	PoolAddress      string
	PoolMeta         model.PoolMeta
	WindowStart      uint64
	WindowEnd        uint64
	SwapCount        uint64
	LiquidityAdds    uint64
	LiquidityRemoves uint64
	Volume0          *big.Int
	Volume1          *big.Int
	Fee0             *big.Int
	Fee1             *big.Int
	LastBlock        uint64
	LastTS           uint64
	FirstBlock       uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	acc := &Accumulator{
		ChainID:     record.ChainID,
		PoolAddress: record.Address,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume0:     big.NewInt(0),
		Volume1:     big.NewInt(0),
		Fee0:        big.NewInt(0),
		Fee1:        big.NewInt(0),
		LastBlock:   record.BlockNumber,
		LastTS:      record.Timestamp,
		FirstBlock:  record.BlockNumber,
	}
	if record.PoolMeta != nil {
		acc.PoolMeta = *record.PoolMeta
	}
	return acc
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}
	if a.PoolMeta.Token0 == "" && record.PoolMeta != nil {
		a.PoolMeta = *record.PoolMeta
	}

	switch record.EventName {
	case model.EventSwap:
		var swap model.SwapEventData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		return a.applySwap(swap)
	case model.EventLiquidityAdded:
		a.LiquidityAdds++
	case model.EventLiquidityRemoved:
		a.LiquidityRemoves++
	}
	return nil
}

// applySwap adds both legs to volume and charges the fee on the input leg,
// rounding down exactly as the pool does.
func (a *Accumulator) applySwap(swap model.SwapEventData) error {
	amountIn, err := parseBigInt(swap.AmountIn)
	if err != nil {
		return err
	}
	amountOut, err := parseBigInt(swap.AmountOut)
	if err != nil {
		return err
	}

	fee := feeFromAmount(amountIn, a.PoolMeta.Fee)
	if swap.ZeroForOne {
		a.Volume0.Add(a.Volume0, amountIn)
		a.Volume1.Add(a.Volume1, amountOut)
		a.Fee0.Add(a.Fee0, fee)
	} else {
		a.Volume1.Add(a.Volume1, amountIn)
		a.Volume0.Add(a.Volume0, amountOut)
		a.Fee1.Add(a.Fee1, fee)
	}

	a.SwapCount++
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}

func feeFromAmount(amountIn *big.Int, feeRate uint32) *big.Int {
	if amountIn == nil || feeRate == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amountIn, big.NewInt(int64(feeRate)))
	return fee.Div(fee, big.NewInt(1_000_000))
}
