package dex

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xivanov/dex-core/internal/chain"
	"github.com/0xivanov/dex-core/internal/model"
)

// Decoder turns raw log records into typed events.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext carries the caches and the optional chain client shared by a
// decode run. Without a chain client every pool must be announced by a
// PoolCreated log before its first event.
type DecodeContext struct {
	Context         context.Context
	Chain           *chain.Client
	PoolMetaCache   *PoolMetaCache
	TokenMetaCache  *TokenMetaCache
	Logger          *zap.Logger
	IncludeLiveMeta bool
}

func (c DecodeContext) context() context.Context {
	if c.Context == nil {
		return context.Background()
	}
	return c.Context
}

func (c DecodeContext) rememberPool(pool common.Address, meta model.PoolMeta) {
	if c.PoolMetaCache != nil {
		c.PoolMetaCache.Set(pool, meta)
	}
}

// poolMeta resolves static pool metadata from the cache, then the chain.
// With IncludeLiveMeta the pool balances at blockNumber are attached when
// the chain can serve them.
func (c DecodeContext) poolMeta(pool common.Address, blockNumber uint64) (model.PoolMeta, error) {
	var (
		meta   model.PoolMeta
		cached bool
	)
	if c.PoolMetaCache != nil {
		meta, cached = c.PoolMetaCache.Get(pool)
	}
	if !cached {
		if c.Chain == nil {
			return model.PoolMeta{}, fmt.Errorf("unknown pool %s and no chain client", pool.Hex())
		}
		fetched, err := FetchPoolMeta(c.context(), c.Chain, pool, c.TokenMetaCache, c.Logger)
		if err != nil {
			return model.PoolMeta{}, err
		}
		meta = fetched
		c.rememberPool(pool, meta)
	}

	if !c.IncludeLiveMeta || c.Chain == nil {
		return meta, nil
	}
	reserves, err := FetchPoolReserves(c.context(), c.Chain, pool, blockNumber, c.Logger)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Debug("pool reserves unavailable", zap.String("pool", pool.Hex()), zap.Uint64("block", blockNumber), zap.Error(err))
		}
		return meta, nil
	}
	meta.Balance0 = reserves.Balance0
	meta.Balance1 = reserves.Balance1
	meta.TotalShares = reserves.TotalShares
	return meta, nil
}
