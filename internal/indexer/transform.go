package indexer

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/0xivanov/dex-core/internal/model"
)

// BlockTimeFunc resolves the timestamp of a block.
type BlockTimeFunc func(number uint64) (uint64, error)

// BuildLogRecords stamps each log with its block time and converts it to the
// stored record shape. All records share one ingestion time.
func BuildLogRecords(chainID uint64, logs []types.Log, blockTime BlockTimeFunc, ingestedAt time.Time) ([]model.LogRecord, error) {
	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		ts, err := blockTime(log.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		records = append(records, NewLogRecord(chainID, log, ts, ingestedAt))
	}
	return records, nil
}

// NewLogRecord converts one log.
func NewLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	record := model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      make([]string, len(log.Topics)),
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
	for i, topic := range log.Topics {
		record.Topics[i] = topic.Hex()
	}
	return record
}
