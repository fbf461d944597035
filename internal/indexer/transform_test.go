package indexer_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xivanov/dex-core/internal/indexer"
)

func TestBuildLogRecords(t *testing.T) {
	logs := []types.Log{
		{
			Address:     common.HexToAddress("0x01"),
			Topics:      []common.Hash{common.HexToHash("0xaa"), common.HexToHash("0xbb")},
			Data:        []byte{0x12, 0x34},
			BlockNumber: 7,
			TxIndex:     1,
			Index:       3,
		},
		{Address: common.HexToAddress("0x02"), BlockNumber: 9},
	}
	ingested := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))

	records, err := indexer.BuildLogRecords(5, logs, func(number uint64) (uint64, error) {
		return 1000 + number, nil
	}, ingested)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, uint64(5), first.ChainID)
	assert.Equal(t, uint64(1007), first.Timestamp)
	assert.Equal(t, uint64(1), first.TxIndex)
	assert.Equal(t, uint64(3), first.LogIndex)
	assert.Equal(t, "0x1234", first.Data)
	assert.Equal(t, common.HexToHash("0xaa").Hex(), first.Topic0())
	assert.Len(t, first.Topics, 2)
	assert.Equal(t, "2024-01-02T02:04:05Z", first.IngestedAt)

	assert.Equal(t, uint64(1009), records[1].Timestamp)
	assert.Empty(t, records[1].Topics)
	assert.Equal(t, "0x", records[1].Data)
}

func TestBuildLogRecordsTimestampFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := indexer.BuildLogRecords(1, []types.Log{{BlockNumber: 4}}, func(uint64) (uint64, error) {
		return 0, boom
	}, time.Now())
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "block timestamp 4")
}
