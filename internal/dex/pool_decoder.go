package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0xivanov/dex-core/internal/model"
)

// DecoderConfig configures decoder behavior. Topic0Map maps extra topic0
// values (for example from a renamed deployment) to known event names.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// PoolDecoder decodes pool and factory events.
type PoolDecoder struct {
	poolABI     abi.ABI
	factoryABI  abi.ABI
	topicToName map[string]string
}

// NewPoolDecoder builds a decoder for pool and factory logs.
func NewPoolDecoder(cfg DecoderConfig) (*PoolDecoder, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return nil, err
	}
	factoryABI, err := FactoryABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string)
	for _, name := range []string{model.EventLiquidityAdded, model.EventLiquidityRemoved, model.EventSwap} {
		topicToName[strings.ToLower(poolABI.Events[name].ID.Hex())] = name
	}
	for _, name := range []string{model.EventPoolCreated, model.EventOwnershipTransferred} {
		topicToName[strings.ToLower(factoryABI.Events[name].ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &PoolDecoder{
		poolABI:     poolABI,
		factoryABI:  factoryABI,
		topicToName: topicToName,
	}, nil
}

// Topics returns every topic0 the decoder accepts.
func (d *PoolDecoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToName))
	for topic := range d.topicToName {
		out = append(out, common.HexToHash(topic))
	}
	return out
}

// CanDecode checks if the topic0 is supported.
func (d *PoolDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent. A PoolCreated log also
// seeds ctx.PoolMetaCache so later pool events need no chain lookups.
func (d *PoolDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid contract address: %s", log.Address)
	}
	emitter := common.HexToAddress(log.Address)

	switch name {
	case model.EventPoolCreated:
		decoded, err := d.decodePoolCreated(log)
		if err != nil {
			return nil, err
		}
		meta := model.PoolMeta{
			Factory: emitter.Hex(),
			Token0:  decoded.Token0,
			Token1:  decoded.Token1,
			Fee:     decoded.Fee,
		}
		ctx.rememberPool(common.HexToAddress(decoded.Pool), meta)
		return buildTypedEvent(log, name, decoded, &meta), nil
	case model.EventOwnershipTransferred:
		decoded, err := d.decodeOwnershipTransferred(log)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded, nil), nil
	}

	meta, err := ctx.poolMeta(emitter, log.BlockNumber)
	if err != nil {
		return nil, err
	}

	switch name {
	case model.EventLiquidityAdded, model.EventLiquidityRemoved:
		decoded, err := d.decodeLiquidity(name, log)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded, &meta), nil
	case model.EventSwap:
		decoded, err := d.decodeSwap(log, meta)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded, &meta), nil
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}

func normalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "liquidityadded", "liquidity_added":
		return model.EventLiquidityAdded
	case "liquidityremoved", "liquidity_removed":
		return model.EventLiquidityRemoved
	case "swap":
		return model.EventSwap
	case "poolcreated", "pool_created":
		return model.EventPoolCreated
	case "ownershiptransferred", "ownership_transferred", "ownershiptransfered", "ownership_transfered":
		return model.EventOwnershipTransferred
	default:
		return ""
	}
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}, meta *model.PoolMeta) *model.TypedEvent {
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		PoolMeta:    meta,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}
}

func (d *PoolDecoder) decodeLiquidity(name string, log model.LogRecord) (model.LiquidityEventData, error) {
	event := d.poolABI.Events[name]
	var indexed struct {
		Provider common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.LiquidityEventData{}, err
	}

	values, err := unpackNonIndexed(event, log.Data, 3)
	if err != nil {
		return model.LiquidityEventData{}, err
	}

	amounts, err := bigStrings(values)
	if err != nil {
		return model.LiquidityEventData{}, err
	}
	return model.LiquidityEventData{
		Provider: indexed.Provider.Hex(),
		Amount0:  amounts[0],
		Amount1:  amounts[1],
		Shares:   amounts[2],
	}, nil
}

func (d *PoolDecoder) decodeSwap(log model.LogRecord, meta model.PoolMeta) (model.SwapEventData, error) {
	event := d.poolABI.Events[model.EventSwap]
	var indexed struct {
		TokenIn common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.SwapEventData{}, err
	}

	values, err := unpackNonIndexed(event, log.Data, 2)
	if err != nil {
		return model.SwapEventData{}, err
	}
	amounts, err := bigStrings(values)
	if err != nil {
		return model.SwapEventData{}, err
	}

	tokenIn := indexed.TokenIn.Hex()
	zeroForOne := strings.EqualFold(tokenIn, meta.Token0)
	if !zeroForOne && !strings.EqualFold(tokenIn, meta.Token1) {
		return model.SwapEventData{}, fmt.Errorf("swap token %s is not in pool %s", tokenIn, log.Address)
	}

	return model.SwapEventData{
		TokenIn:    tokenIn,
		AmountIn:   amounts[0],
		AmountOut:  amounts[1],
		ZeroForOne: zeroForOne,
	}, nil
}

func (d *PoolDecoder) decodePoolCreated(log model.LogRecord) (model.PoolCreatedEventData, error) {
	event := d.factoryABI.Events[model.EventPoolCreated]
	var indexed struct {
		Token0 common.Address
		Token1 common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.PoolCreatedEventData{}, err
	}

	values, err := unpackNonIndexed(event, log.Data, 2)
	if err != nil {
		return model.PoolCreatedEventData{}, err
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return model.PoolCreatedEventData{}, err
	}
	if !fee.IsUint64() || fee.Uint64() > 1_000_000 {
		return model.PoolCreatedEventData{}, fmt.Errorf("fee out of range: %s", fee)
	}
	pool, err := asAddress(values[1])
	if err != nil {
		return model.PoolCreatedEventData{}, err
	}

	return model.PoolCreatedEventData{
		Token0: indexed.Token0.Hex(),
		Token1: indexed.Token1.Hex(),
		Fee:    uint32(fee.Uint64()),
		Pool:   pool.Hex(),
	}, nil
}

func (d *PoolDecoder) decodeOwnershipTransferred(log model.LogRecord) (model.OwnershipTransferredEventData, error) {
	event := d.factoryABI.Events[model.EventOwnershipTransferred]
	var indexed struct {
		OldOwner common.Address
		NewOwner common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.OwnershipTransferredEventData{}, err
	}
	return model.OwnershipTransferredEventData{
		OldOwner: indexed.OldOwner.Hex(),
		NewOwner: indexed.NewOwner.Hex(),
	}, nil
}

func parseIndexed(event abi.Event, topics []string, out interface{}) error {
	indexed := indexedArguments(event.Inputs)
	if len(topics) != len(indexed)+1 {
		return fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(topics))
	}
	hashes, err := parseTopicHashes(topics[1:])
	if err != nil {
		return err
	}
	if err := abi.ParseTopics(out, indexed, hashes); err != nil {
		return fmt.Errorf("parse topics: %w", err)
	}
	return nil
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string, want int) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != want {
		return nil, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}
	return values, nil
}

func bigStrings(values []interface{}) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		n, err := asBigInt(v)
		if err != nil {
			return nil, err
		}
		out[i] = n.String()
	}
	return out, nil
}
