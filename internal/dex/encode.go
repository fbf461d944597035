package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// EncodeEvent packs an event the way the EVM emits it: topic0 is the event
// ID, indexed arguments follow as topics and the rest is ABI-encoded data.
// Arguments are given in declaration order.
func EncodeEvent(contractABI abi.ABI, name string, args ...interface{}) ([]common.Hash, []byte, error) {
	event, ok := contractABI.Events[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown event %s", name)
	}
	if len(args) != len(event.Inputs) {
		return nil, nil, fmt.Errorf("event %s: expected %d args, got %d", name, len(event.Inputs), len(args))
	}

	topics := []common.Hash{event.ID}
	data := make([]interface{}, 0, len(args))
	for i, input := range event.Inputs {
		if !input.Indexed {
			data = append(data, args[i])
			continue
		}
		hashes, err := abi.MakeTopics([]interface{}{args[i]})
		if err != nil {
			return nil, nil, fmt.Errorf("event %s topic %s: %w", name, input.Name, err)
		}
		topics = append(topics, hashes[0][0])
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, nil, fmt.Errorf("pack %s: %w", name, err)
	}
	return topics, packed, nil
}

// EventTopic returns topic0 of the named event in contractABI.
func EventTopic(contractABI abi.ABI, name string) (common.Hash, error) {
	event, ok := contractABI.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("unknown event %s", name)
	}
	return event.ID, nil
}
