package devnode

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xivanov/dex-core/internal/amm"
	"github.com/0xivanov/dex-core/internal/capability"
	"github.com/0xivanov/dex-core/internal/factory"
	"github.com/0xivanov/dex-core/internal/token"
)

// answer evaluates a view function against an in-process contract.
func answer(contract any, method string, args []interface{}) ([]interface{}, bool) {
	if method == "supportsInterface" {
		in, ok := contract.(capability.Introspector)
		if !ok {
			return nil, false
		}
		id, ok := args[0].([4]byte)
		if !ok {
			return nil, false
		}
		return one(in.SupportsInterface(capability.InterfaceID(id)))
	}

	switch c := contract.(type) {
	case *amm.Pool:
		return poolView(c, method)
	case *factory.Registry:
		return registryView(c, method, args)
	case *token.Token:
		return tokenView(c, method, args)
	}
	return nil, false
}

func poolView(p *amm.Pool, method string) ([]interface{}, bool) {
	switch method {
	case "factory":
		return one(p.Factory())
	case "owner":
		return one(p.Owner())
	case "token0":
		return one(p.Token0())
	case "token1":
		return one(p.Token1())
	case "fee":
		return one(new(big.Int).SetUint64(uint64(p.Fee())))
	case "balance0":
		return one(p.Balance0().ToBig())
	case "balance1":
		return one(p.Balance1().ToBig())
	case "totalShares":
		return one(p.TotalShares().ToBig())
	}
	return nil, false
}

func registryView(r *factory.Registry, method string, args []interface{}) ([]interface{}, bool) {
	switch method {
	case "owner":
		return one(r.Owner())
	case "pendingOwner":
		return one(r.PendingOwner())
	case "getPool":
		tokenA, okA := args[0].(common.Address)
		tokenB, okB := args[1].(common.Address)
		fee, okFee := args[2].(*big.Int)
		if !okA || !okB || !okFee || !fee.IsUint64() || fee.Uint64() > amm.MaxFee {
			return one(common.Address{})
		}
		return one(r.GetPool(tokenA, tokenB, uint32(fee.Uint64())))
	}
	return nil, false
}

func tokenView(t *token.Token, method string, args []interface{}) ([]interface{}, bool) {
	switch method {
	case "name":
		return one(t.Name())
	case "symbol":
		return one(t.Symbol())
	case "decimals":
		return one(t.Decimals())
	case "totalSupply":
		return one(t.TotalSupply().ToBig())
	case "balanceOf":
		holder, ok := args[0].(common.Address)
		if !ok {
			return nil, false
		}
		return one(t.BalanceOf(holder).ToBig())
	case "allowance":
		owner, okOwner := args[0].(common.Address)
		spender, okSpender := args[1].(common.Address)
		if !okOwner || !okSpender {
			return nil, false
		}
		return one(t.Allowance(owner, spender).ToBig())
	}
	return nil, false
}

func one(v interface{}) ([]interface{}, bool) {
	return []interface{}{v}, true
}
