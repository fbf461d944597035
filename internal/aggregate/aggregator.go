// Package aggregate folds typed pool events into per-pool time windows.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xivanov/dex-core/internal/chain"
	"github.com/0xivanov/dex-core/internal/dex"
	"github.com/0xivanov/dex-core/internal/model"
	"github.com/0xivanov/dex-core/internal/storage"
)

const feeMethodExact = "amount_in_times_fee"

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// MetricsStore persists pools and window metrics.
type MetricsStore interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Aggregator aggregates typed events into pool window metrics. The chain
// client is optional and only used to resolve token decimals.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	chainClient  *chain.Client
	logger       *zap.Logger
	decimals     *dex.Cache[uint8]
	accumulators map[string]*Accumulator
	reserves     map[string]*reserves
	poolSeen     map[string]model.Pool
}

func NewAggregator(cfg Config, store MetricsStore, chainClient *chain.Client, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		chainClient:  chainClient,
		logger:       logger,
		decimals:     dex.NewCache[uint8](),
		accumulators: make(map[string]*Accumulator),
		reserves:     make(map[string]*reserves),
		poolSeen:     make(map[string]model.Pool),
	}
}

type runStats struct {
	total, windows, skipped, failed int
}

// Run executes aggregation over a typed events JSONL file. Events at or
// before the resume point still move reserves so TVL stays exact.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return errors.New("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return errors.New("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 256)
	maxTs := startTs
	var stats runStats

	err = storage.ReadJSONL(inputPath, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			return nil
		}

		switch record.EventName {
		case model.EventPoolCreated:
			if pool := a.poolCreated(record); pool != nil {
				pools = append(pools, *pool)
			}
			return nil
		case model.EventSwap, model.EventLiquidityAdded, model.EventLiquidityRemoved:
		default:
			stats.skipped++
			return nil
		}

		accKey := poolKey(record.Address)
		if record.Timestamp <= startTs {
			stats.skipped++
			a.applyReserves(accKey, record)
			return nil
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		acc := a.accumulators[accKey]
		if acc != nil && acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(ctx, acc)
			if metrics != nil {
				batch = append(batch, *metrics)
				stats.windows++
			}
			if pool != nil {
				pools = append(pools, *pool)
			}
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		}

		a.applyReserves(accKey, record)
		if err := acc.AddEvent(record); err != nil {
			stats.failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Address), zap.String("event", record.EventName))
			return nil
		}

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, acc := range a.accumulators {
		metrics, pool := a.flushAccumulator(ctx, acc)
		if metrics != nil {
			batch = append(batch, *metrics)
			stats.windows++
		}
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", stats.total),
		zap.Int("windows", stats.windows),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
	)
	return nil
}

func (a *Aggregator) applyReserves(key string, record model.TypedEventRecord) {
	r := a.reserves[key]
	if r == nil {
		r = newReserves()
		a.reserves[key] = r
	}
	if err := r.apply(record); err != nil {
		a.logger.Warn("replay reserves", zap.Error(err), zap.String("pool", record.Address))
	}
}

// poolCreated registers a pool announced by its factory. Its reserves start
// at zero, so replayed TVL is exact from here on.
func (a *Aggregator) poolCreated(record model.TypedEventRecord) *model.Pool {
	var created model.PoolCreatedEventData
	if err := json.Unmarshal(record.Decoded, &created); err != nil {
		a.logger.Warn("decode pool created", zap.Error(err))
		return nil
	}
	key := poolKey(created.Pool)
	r := newReserves()
	r.created()
	a.reserves[key] = r

	pool := model.Pool{
		ChainID:        record.ChainID,
		Address:        created.Pool,
		Factory:        record.Address,
		Token0:         created.Token0,
		Token1:         created.Token1,
		Fee:            created.Fee,
		FirstSeenBlock: record.BlockNumber,
	}
	a.poolSeen[key] = pool
	return &pool
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.store.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(batch) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (*model.PoolWindowMetrics, *model.Pool) {
	if acc == nil {
		return nil, nil
	}

	poolMeta := acc.PoolMeta
	if poolMeta.Token0 == "" || poolMeta.Token1 == "" {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil, nil
	}

	poolRecord := a.registerPool(acc)

	decimals0 := a.tokenDecimals(ctx, poolMeta.Token0)
	decimals1 := a.tokenDecimals(ctx, poolMeta.Token1)

	tvl0Int, tvl1Int, tvlMethod := a.reserves[poolKey(acc.PoolAddress)].snapshot()
	var tvl0Str, tvl1Str *string
	if tvl0Int != nil && tvl1Int != nil {
		v0 := formatTokenAmount(tvl0Int, decimals0)
		v1 := formatTokenAmount(tvl1Int, decimals1)
		tvl0Str, tvl1Str = &v0, &v1
	}

	feeRate0, feeRate1 := computeFeeRates(acc.Fee0, acc.Fee1, tvl0Int, tvl1Int)
	apr := computeAPR(acc.Fee0, acc.Fee1, tvl0Int, tvl1Int, a.cfg.WindowSeconds)

	metrics := &model.PoolWindowMetrics{
		ChainID:          acc.ChainID,
		PoolAddress:      acc.PoolAddress,
		WindowSizeSecs:   int64(a.cfg.WindowSeconds),
		WindowStart:      time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:        time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:        acc.SwapCount,
		LiquidityAdds:    acc.LiquidityAdds,
		LiquidityRemoves: acc.LiquidityRemoves,
		Volume0:          formatTokenAmount(acc.Volume0, decimals0),
		Volume1:          formatTokenAmount(acc.Volume1, decimals1),
		Fee0:             formatTokenAmount(acc.Fee0, decimals0),
		Fee1:             formatTokenAmount(acc.Fee1, decimals1),
		FeeRate0:         feeRate0,
		FeeRate1:         feeRate1,
		TVL0:             tvl0Str,
		TVL1:             tvl1Str,
		APR:              apr,
		FeeMethod:        feeMethodExact,
		TVLMethod:        tvlMethod,
	}
	return metrics, poolRecord
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := poolKey(acc.PoolAddress)
	if _, ok := a.poolSeen[key]; ok {
		return nil
	}
	pool := model.Pool{
		ChainID:        acc.ChainID,
		Address:        acc.PoolAddress,
		Factory:        acc.PoolMeta.Factory,
		Token0:         acc.PoolMeta.Token0,
		Token1:         acc.PoolMeta.Token1,
		Fee:            acc.PoolMeta.Fee,
		FirstSeenBlock: acc.FirstBlock,
	}
	a.poolSeen[key] = pool
	return &pool
}

// tokenDecimals resolves decimals through the chain when one is configured.
// Without one, amounts are reported in base units.
func (a *Aggregator) tokenDecimals(ctx context.Context, token string) uint8 {
	if a.chainClient == nil || !common.IsHexAddress(token) {
		return 0
	}
	addr := common.HexToAddress(token)
	if decimals, ok := a.decimals.Get(addr); ok {
		return decimals
	}
	meta, err := dex.FetchTokenMeta(ctx, a.chainClient, addr, a.logger)
	if err != nil {
		a.logger.Warn("token decimals", zap.String("token", token), zap.Error(err))
	}
	a.decimals.Set(addr, meta.Decimals)
	return meta.Decimals
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
