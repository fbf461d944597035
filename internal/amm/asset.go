package amm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/0xivanov/dex-core/internal/ledger"
)

// Asset is the fungible token surface a pool moves funds through. The call
// passed to Transfer and TransferFrom has the pool as its sender.
type Asset interface {
	BalanceOf(holder common.Address) *uint256.Int
	Transfer(call *ledger.Call, to common.Address, amount *uint256.Int) error
	TransferFrom(call *ledger.Call, from, to common.Address, amount *uint256.Int) error
}
