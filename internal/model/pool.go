package model

import "time"

// Pool is the stored registry record of a pool.
type Pool struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	Factory        string `json:"factory"`
	Token0         string `json:"token0"`
	Token1         string `json:"token1"`
	Fee            uint32 `json:"fee"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}

// PoolMeta captures immutable pool metadata with optional live reserves.
type PoolMeta struct {
	Factory     string `json:"factory,omitempty"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Fee         uint32 `json:"fee"`
	Balance0    string `json:"balance0,omitempty"`
	Balance1    string `json:"balance1,omitempty"`
	TotalShares string `json:"total_shares,omitempty"`
}

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// PoolWindowMetrics stores aggregated metrics for a pool window. TVL is the
// pool's reserves at the end of the window.
type PoolWindowMetrics struct {
	ChainID          uint64
	PoolAddress      string
	WindowSizeSecs   int64
	WindowStart      time.Time
	WindowEnd        time.Time
	SwapCount        uint64
	LiquidityAdds    uint64
	LiquidityRemoves uint64
	Volume0          string
	Volume1          string
	Fee0             string
	Fee1             string
	FeeRate0         *string
	FeeRate1         *string
	TVL0             *string
	TVL1             *string
	APR              *string
	FeeMethod        string
	TVLMethod        string
}
