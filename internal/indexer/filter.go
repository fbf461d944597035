package indexer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0xivanov/dex-core/internal/dex"
)

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

// SplitRange cuts [from, to] into consecutive batches of at most size blocks.
func SplitRange(from, to, size uint64) ([]BlockRange, error) {
	switch {
	case size == 0:
		return nil, errors.New("batch size must be greater than zero")
	case to < from:
		return nil, fmt.Errorf("invalid block range %d..%d", from, to)
	}

	out := make([]BlockRange, 0, (to-from)/size+1)
	for start := from; ; start += size {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		out = append(out, BlockRange{From: start, To: end})
		if end == to {
			return out, nil
		}
	}
}

// ParseAddresses parses hex addresses, skipping blanks.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		out = append(out, common.HexToAddress(input))
	}
	return out, nil
}

// ParseTopic0 parses topic0 filters. Each entry is a 32-byte hex hash or
// the name of a pool or factory event, such as "Swap" or "PoolCreated".
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	var named map[string]common.Hash
	out := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !strings.HasPrefix(input, "0x") {
			if named == nil {
				var err error
				if named, err = eventTopics(); err != nil {
					return nil, err
				}
			}
			topic, ok := named[strings.ToLower(input)]
			if !ok {
				return nil, fmt.Errorf("unknown event: %s", input)
			}
			out = append(out, topic)
			continue
		}
		data, err := hexutil.Decode(input)
		if err != nil || len(data) != common.HashLength {
			return nil, fmt.Errorf("invalid topic0: %s", input)
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func eventTopics() (map[string]common.Hash, error) {
	poolABI, err := dex.PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	factoryABI, err := dex.FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	out := make(map[string]common.Hash, len(poolABI.Events)+len(factoryABI.Events))
	for name, event := range poolABI.Events {
		out[strings.ToLower(name)] = event.ID
	}
	for name, event := range factoryABI.Events {
		out[strings.ToLower(name)] = event.ID
	}
	return out, nil
}
