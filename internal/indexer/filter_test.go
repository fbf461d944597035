package indexer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xivanov/dex-core/internal/dex"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 105, 2)
	require.NoError(t, err)
	require.Equal(t, []BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}, got)

	got, err = SplitRange(0, 6, 4)
	require.NoError(t, err)
	require.Equal(t, []BlockRange{{From: 0, To: 3}, {From: 4, To: 6}}, got)
	assert.Equal(t, uint64(3), got[1].Len())
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(5, 5, 10)
	require.NoError(t, err)
	require.Equal(t, []BlockRange{{From: 5, To: 5}}, got)
}

func TestSplitRangeReachesMaxBlock(t *testing.T) {
	const max = ^uint64(0)
	got, err := SplitRange(max-2, max, 2)
	require.NoError(t, err)
	require.Equal(t, []BlockRange{{From: max - 2, To: max - 1}, {From: max, To: max}}, got)
}

func TestSplitRangeInvalid(t *testing.T) {
	_, err := SplitRange(10, 9, 1)
	require.Error(t, err)
	_, err = SplitRange(1, 10, 0)
	require.Error(t, err)
}

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{" 0x00000000000000000000000000000000000000aa ", ""})
	require.NoError(t, err)
	require.Equal(t, []common.Address{common.HexToAddress("0xaa")}, got)

	_, err = ParseAddresses([]string{"0x1234"})
	require.Error(t, err)
}

func TestParseTopic0(t *testing.T) {
	_, err := ParseTopic0([]string{"0x1234"})
	require.Error(t, err)
	_, err = ParseTopic0([]string{"Sync"})
	require.Error(t, err)

	got, err := ParseTopic0([]string{"0x0000000000000000000000000000000000000000000000000000000000000001"})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{common.BigToHash(common.Big1)}, got)

	poolABI, err := dex.PoolABI()
	require.NoError(t, err)
	factoryABI, err := dex.FactoryABI()
	require.NoError(t, err)
	got, err = ParseTopic0([]string{"swap", " PoolCreated ", ""})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{poolABI.Events["Swap"].ID, factoryABI.Events["PoolCreated"].ID}, got)
}
