package model

// PoolState is a point-in-time view of a constant-product pool. Amounts are
// decimal strings.
type PoolState struct {
	Address     string `json:"address"`
	Factory     string `json:"factory"`
	Owner       string `json:"owner"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Fee         uint32 `json:"fee"`
	Balance0    string `json:"balance0"`
	Balance1    string `json:"balance1"`
	TotalShares string `json:"total_shares"`
	Initialized bool   `json:"initialized"`
}
