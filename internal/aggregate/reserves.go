package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/0xivanov/dex-core/internal/model"
)

const (
	tvlMethodReplay   = "event_replay"
	tvlMethodLiveMeta = "pool_meta_at_block"
	tvlMethodNone     = "unavailable"
)

// reserves tracks a pool's balances by replaying its events. Balances are
// known only once the pool's creation or a live reserve snapshot was seen.
type reserves struct {
	balance0 *big.Int
	balance1 *big.Int
	known    bool
	method   string
}

func newReserves() *reserves {
	return &reserves{balance0: big.NewInt(0), balance1: big.NewInt(0), method: tvlMethodNone}
}

// created marks the pool as empty at creation.
func (r *reserves) created() {
	r.balance0.SetInt64(0)
	r.balance1.SetInt64(0)
	r.known = true
	r.method = tvlMethodReplay
}

// apply moves the balances by one pool event.
func (r *reserves) apply(record model.TypedEventRecord) error {
	if meta := record.PoolMeta; meta != nil && meta.Balance0 != "" && meta.Balance1 != "" {
		b0, ok0 := new(big.Int).SetString(meta.Balance0, 10)
		b1, ok1 := new(big.Int).SetString(meta.Balance1, 10)
		if ok0 && ok1 {
			r.balance0, r.balance1 = b0, b1
			r.known = true
			r.method = tvlMethodLiveMeta
			return nil
		}
	}

	switch record.EventName {
	case model.EventLiquidityAdded, model.EventLiquidityRemoved:
		var liquidity model.LiquidityEventData
		if err := json.Unmarshal(record.Decoded, &liquidity); err != nil {
			return fmt.Errorf("decode liquidity: %w", err)
		}
		amount0, err := parseBigInt(liquidity.Amount0)
		if err != nil {
			return err
		}
		amount1, err := parseBigInt(liquidity.Amount1)
		if err != nil {
			return err
		}
		if record.EventName == model.EventLiquidityAdded {
			r.balance0.Add(r.balance0, amount0)
			r.balance1.Add(r.balance1, amount1)
		} else {
			r.balance0.Sub(r.balance0, amount0)
			r.balance1.Sub(r.balance1, amount1)
		}
	case model.EventSwap:
		var swap model.SwapEventData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		amountIn, err := parseBigInt(swap.AmountIn)
		if err != nil {
			return err
		}
		amountOut, err := parseBigInt(swap.AmountOut)
		if err != nil {
			return err
		}
		if swap.ZeroForOne {
			r.balance0.Add(r.balance0, amountIn)
			r.balance1.Sub(r.balance1, amountOut)
		} else {
			r.balance1.Add(r.balance1, amountIn)
			r.balance0.Sub(r.balance0, amountOut)
		}
	}

	if r.balance0.Sign() < 0 || r.balance1.Sign() < 0 {
		// History before this point is missing.
		r.known = false
		r.method = tvlMethodNone
	}
	return nil
}

// snapshot returns copies of the balances, or nils when unknown.
func (r *reserves) snapshot() (*big.Int, *big.Int, string) {
	if r == nil || !r.known {
		return nil, nil, tvlMethodNone
	}
	return new(big.Int).Set(r.balance0), new(big.Int).Set(r.balance1), r.method
}
