package model

import "encoding/json"

// Event names as they appear in TypedEvent.EventName.
const (
	EventLiquidityAdded       = "LiquidityAdded"
	EventLiquidityRemoved     = "LiquidityRemoved"
	EventSwap                 = "Swap"
	EventPoolCreated          = "PoolCreated"
	EventOwnershipTransferred = "OwnershipTransferred"
)

// LiquidityEventData is the payload of LiquidityAdded and LiquidityRemoved.
type LiquidityEventData struct {
	Provider string `json:"provider"`
	Amount0  string `json:"amount0"`
	Amount1  string `json:"amount1"`
	Shares   string `json:"shares"`
}

// SwapEventData is the decoded Swap payload. ZeroForOne is derived from the
// pool's token0.
type SwapEventData struct {
	TokenIn    string `json:"token_in"`
	AmountIn   string `json:"amount_in"`
	AmountOut  string `json:"amount_out"`
	ZeroForOne bool   `json:"zero_for_one"`
}

type PoolCreatedEventData struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
	Fee    uint32 `json:"fee"`
	Pool   string `json:"pool"`
}

type OwnershipTransferredEventData struct {
	OldOwner string `json:"old_owner"`
	NewOwner string `json:"new_owner"`
}

// TypedEvent is a decoded event enriched with pool metadata. Registry
// events other than PoolCreated carry no pool metadata.
type TypedEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     interface{} `json:"decoded"`
	PoolMeta    *PoolMeta   `json:"pool_meta,omitempty"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// TypedEventRecord is TypedEvent as read back for aggregation.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	PoolMeta    *PoolMeta       `json:"pool_meta,omitempty"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// RawLogRef keeps a minimal raw reference for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}
