package factory

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0xivanov/dex-core/internal/amm"
	"github.com/0xivanov/dex-core/internal/ledger"
)

var (
	proxyPrefix = common.FromHex("0x3d602d80600a3d3981f3363d3d373d3d3d363d73")
	proxySuffix = common.FromHex("0x5af43d82803e903d91602b57fd5bf3")
)

// ProxyInitCode returns the EIP-1167 minimal proxy creation code that
// delegates to implementation.
func ProxyInitCode(implementation common.Address) []byte {
	code := make([]byte, 0, len(proxyPrefix)+common.AddressLength+len(proxySuffix))
	code = append(code, proxyPrefix...)
	code = append(code, implementation.Bytes()...)
	return append(code, proxySuffix...)
}

// PoolSalt is keccak256(token0 ++ token1 ++ uint256(fee)).
func PoolSalt(key PoolKey) [32]byte {
	fee := common.LeftPadBytes(new(big.Int).SetUint64(uint64(key.Fee)).Bytes(), 32)
	return crypto.Keccak256Hash(key.Token0.Bytes(), key.Token1.Bytes(), fee)
}

// PredictAddress returns the address a clone of implementation deployed by
// deployer under salt will have.
func PredictAddress(deployer, implementation common.Address, salt [32]byte) common.Address {
	return crypto.CreateAddress2(deployer, salt, crypto.Keccak256(ProxyInitCode(implementation)))
}

// DeployTemplate deploys a pool that only serves as clone source. It has no
// factory and can never be initialized.
func DeployTemplate(call *ledger.Call) (common.Address, error) {
	return call.Create(func(self common.Address) any {
		return amm.NewPool(self, common.Address{})
	})
}

// clonePool deploys a clone of the template at implementation. The clone's
// factory is the sender of call.
func clonePool(call *ledger.Call, implementation common.Address, salt [32]byte) (*amm.Pool, error) {
	template, err := ledger.Lookup[*amm.Pool](call, implementation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImplementation, err)
	}

	initCodeHash := crypto.Keccak256Hash(ProxyInitCode(implementation))
	factory := call.Sender()
	addr, err := call.Create2(salt, initCodeHash, func(self common.Address) any {
		return template.Clone(self, factory)
	})
	if err != nil {
		return nil, fmt.Errorf("deploy clone: %w", err)
	}
	return ledger.Lookup[*amm.Pool](call, addr)
}
