package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xivanov/dex-core/internal/chain"
	"github.com/0xivanov/dex-core/internal/dex"
	"github.com/0xivanov/dex-core/internal/model"
	"github.com/0xivanov/dex-core/internal/storage"
)

// RunConfig holds runtime settings for the indexer. Factories are followed
// for PoolCreated logs and every pool they announce is added to the filter.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Factories         []common.Address
	Addresses         []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// PoolSink receives pools discovered from PoolCreated logs.
type PoolSink interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
}

// Runner streams logs from the chain and writes them to storage.
type Runner struct {
	cfg        RunConfig
	chain      *chain.Client
	storage    storage.Storage
	poolSink   PoolSink
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore

	factories map[common.Address]struct{}
	pools     map[common.Address]struct{}
	poolOrder []common.Address
}

// NewRunner builds a Runner with its dependencies. poolSink may be nil.
func NewRunner(cfg RunConfig, chainClient *chain.Client, storageSink storage.Storage, poolSink PoolSink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:        cfg,
		chain:      chainClient,
		storage:    storageSink,
		poolSink:   poolSink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		factories:  make(map[common.Address]struct{}),
		pools:      make(map[common.Address]struct{}),
	}
	for _, factory := range cfg.Factories {
		r.factories[factory] = struct{}{}
	}
	r.addPools(cfg.Addresses)
	return r
}

// Pools returns the pools followed so far in discovery order.
func (r *Runner) Pools() []common.Address {
	out := make([]common.Address, len(r.poolOrder))
	copy(out, r.poolOrder)
	return out
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return errors.New("chain client is nil")
	}
	if r.storage == nil {
		return errors.New("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return errors.New("batch size must be greater than zero")
	}
	if len(r.factories) == 0 && len(r.pools) == 0 {
		return errors.New("at least one factory or pool address is required")
	}

	factoryABI, err := dex.FactoryABI()
	if err != nil {
		return fmt.Errorf("parse factory abi: %w", err)
	}
	poolCreated := factoryABI.Events[model.EventPoolCreated]
	topics := r.topicFilter(poolCreated.ID)

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		r.addPools(cp.Pools)
		r.logger.Info("resume from checkpoint",
			zap.Uint64("last_processed", cp.LastProcessedBlock),
			zap.Uint64("from", from),
			zap.Int("pools", len(cp.Pools)),
		)
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To, r.watched(), topics)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		discovered, err := r.discover(chainIDValue, poolCreated, logs)
		if err != nil {
			return err
		}
		if len(discovered) > 0 {
			addresses := make([]common.Address, 0, len(discovered))
			for _, pool := range discovered {
				addresses = append(addresses, common.HexToAddress(pool.Address))
			}
			extra, err := r.filterLogsWithRetry(ctx, discovered[0].FirstSeenBlock, blockRange.To, addresses, topics)
			if err != nil {
				return fmt.Errorf("filter logs: %w", err)
			}
			logs = append(logs, extra...)
			sortLogs(logs)

			if r.poolSink != nil {
				if err := r.poolSink.UpsertPools(ctx, discovered); err != nil {
					return fmt.Errorf("store pools: %w", err)
				}
			}
			r.logger.Info("pools discovered", zap.Int("count", len(discovered)), zap.Int("total", len(r.poolOrder)))
		}

		fresh := logs[:0]
		for _, log := range logs {
			if !r.isDuplicate(log) {
				fresh = append(fresh, log)
			}
		}
		records, err := BuildLogRecords(chainIDValue, fresh, func(number uint64) (uint64, error) {
			return r.blockTimestampWithRetry(ctx, number)
		}, time.Now())
		if err != nil {
			return err
		}

		if err := r.storage.PutLogBatch(records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}

		if err := r.checkpoint.Save(blockRange.To, r.poolOrder); err != nil {
			return err
		}

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

// topicFilter keeps PoolCreated visible whenever factories are followed.
func (r *Runner) topicFilter(poolCreated common.Hash) []common.Hash {
	if len(r.cfg.Topic0) == 0 || len(r.factories) == 0 {
		return r.cfg.Topic0
	}
	for _, topic := range r.cfg.Topic0 {
		if topic == poolCreated {
			return r.cfg.Topic0
		}
	}
	return append(r.cfg.Topic0[:len(r.cfg.Topic0):len(r.cfg.Topic0)], poolCreated)
}

func (r *Runner) watched() []common.Address {
	out := make([]common.Address, 0, len(r.cfg.Factories)+len(r.poolOrder))
	out = append(out, r.cfg.Factories...)
	return append(out, r.poolOrder...)
}

func (r *Runner) addPools(pools []common.Address) []common.Address {
	var added []common.Address
	for _, pool := range pools {
		if _, ok := r.pools[pool]; ok {
			continue
		}
		r.pools[pool] = struct{}{}
		r.poolOrder = append(r.poolOrder, pool)
		added = append(added, pool)
	}
	return added
}

// discover registers pools announced by followed factories in logs.
func (r *Runner) discover(chainID uint64, poolCreated abi.Event, logs []types.Log) ([]model.Pool, error) {
	var out []model.Pool
	for _, log := range logs {
		if len(log.Topics) != 3 || log.Topics[0] != poolCreated.ID {
			continue
		}
		if _, ok := r.factories[log.Address]; !ok {
			continue
		}
		values, err := poolCreated.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack PoolCreated at block %d: %w", log.BlockNumber, err)
		}
		pool, ok := values[1].(common.Address)
		if !ok {
			return nil, fmt.Errorf("unexpected PoolCreated pool type %T", values[1])
		}
		if len(r.addPools([]common.Address{pool})) == 0 {
			continue
		}
		fee, ok := values[0].(*big.Int)
		if !ok || !fee.IsUint64() || fee.Uint64() > 1_000_000 {
			return nil, fmt.Errorf("unexpected PoolCreated fee %v", values[0])
		}
		out = append(out, model.Pool{
			ChainID:        chainID,
			Address:        pool.Hex(),
			Factory:        log.Address.Hex(),
			Token0:         common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
			Token1:         common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
			Fee:            uint32(fee.Uint64()),
			FirstSeenBlock: log.BlockNumber,
		})
	}
	return out, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics []common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, addresses, topics)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}

func sortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}
