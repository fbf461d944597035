package dex

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xivanov/dex-core/internal/capability"
	"github.com/0xivanov/dex-core/internal/chain"
)

// ProbeInterface runs ERC-165 detection against a deployed contract: the
// target must answer true for ERC165 and false for 0xffffffff before its
// answer for id is trusted. Accounts without code, reverting calls and
// malformed answers yield ProbeFailed. The error is reserved for transport
// failures.
func ProbeInterface(ctx context.Context, chainClient *chain.Client, target common.Address, id capability.InterfaceID) (capability.Result, error) {
	if chainClient == nil {
		return capability.ProbeFailed, errNoChain
	}

	code, err := chainClient.CodeAt(ctx, target, nil)
	if err != nil {
		return capability.ProbeFailed, fmt.Errorf("code at %s: %w", target.Hex(), err)
	}
	if len(code) == 0 {
		return capability.ProbeFailed, nil
	}

	erc165ABI, err := ERC165ABI()
	if err != nil {
		return capability.ProbeFailed, fmt.Errorf("parse erc165 abi: %w", err)
	}

	supports := func(id capability.InterfaceID) (bool, bool) {
		values, err := callMethod(ctx, chainClient, target, erc165ABI, "supportsInterface", nil, [4]byte(id))
		if err != nil {
			return false, false
		}
		answer, ok := values[0].(bool)
		return answer, ok
	}

	if ok, answered := supports(capability.ERC165); !answered || !ok {
		return capability.ProbeFailed, ctx.Err()
	}
	if ok, answered := supports(capability.Invalid); !answered || ok {
		return capability.ProbeFailed, ctx.Err()
	}
	ok, answered := supports(id)
	if !answered {
		return capability.ProbeFailed, ctx.Err()
	}
	if ok {
		return capability.Supported, nil
	}
	return capability.Unsupported, nil
}
