package token

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xivanov/dex-core/internal/capability"
	"github.com/0xivanov/dex-core/internal/dex"
	"github.com/0xivanov/dex-core/internal/ledger"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

func deploy(t *testing.T, w *ledger.World) *Token {
	t.Helper()
	var addr common.Address
	_, err := w.Execute(alice, func(call *ledger.Call) error {
		var err error
		addr, err = call.Create(Constructor("Dex Token", "DEX", 18))
		return err
	})
	require.NoError(t, err)
	contract, ok := w.Contract(addr)
	require.True(t, ok)
	return contract.(*Token)
}

func TestMintAndTransfer(t *testing.T) {
	w := ledger.NewWorld(ledger.Config{ChainID: 1}, nil)
	tok := deploy(t, w)

	receipt, err := w.Execute(alice, func(call *ledger.Call) error {
		if err := tok.Mint(call, uint256.NewInt(1000)); err != nil {
			return err
		}
		return tok.Transfer(call, bob, uint256.NewInt(300))
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(700), tok.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(300), tok.BalanceOf(bob).Uint64())
	assert.Equal(t, uint64(1000), tok.TotalSupply().Uint64())

	erc20ABI, err := dex.ERC20ABI()
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 2)
	for _, log := range receipt.Logs {
		assert.Equal(t, erc20ABI.Events["Transfer"].ID, log.Topics[0])
		assert.Equal(t, tok.Address(), log.Address)
	}
	assert.Equal(t, common.BytesToHash(bob.Bytes()), receipt.Logs[1].Topics[2])
}

func TestTransferInsufficientBalance(t *testing.T) {
	w := ledger.NewWorld(ledger.Config{ChainID: 1}, nil)
	tok := deploy(t, w)

	_, err := w.Execute(alice, func(call *ledger.Call) error {
		if err := tok.Mint(call, uint256.NewInt(10)); err != nil {
			return err
		}
		return tok.Transfer(call, bob, uint256.NewInt(11))
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, tok.BalanceOf(alice).IsZero())
	assert.True(t, tok.TotalSupply().IsZero())
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	w := ledger.NewWorld(ledger.Config{ChainID: 1}, nil)
	tok := deploy(t, w)

	_, err := w.Execute(alice, func(call *ledger.Call) error {
		if err := tok.Mint(call, uint256.NewInt(100)); err != nil {
			return err
		}
		if err := tok.Approve(call, bob, uint256.NewInt(40)); err != nil {
			return err
		}
		return tok.IncreaseAllowance(call, bob, uint256.NewInt(10))
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(50), tok.Allowance(alice, bob).Uint64())

	_, err = w.Execute(bob, func(call *ledger.Call) error {
		return tok.TransferFrom(call, alice, carol, uint256.NewInt(30))
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(20), tok.Allowance(alice, bob).Uint64())
	assert.Equal(t, uint64(30), tok.BalanceOf(carol).Uint64())

	_, err = w.Execute(bob, func(call *ledger.Call) error {
		return tok.TransferFrom(call, alice, carol, uint256.NewInt(21))
	})
	require.ErrorIs(t, err, ErrInsufficientAllowance)
	assert.Equal(t, uint64(20), tok.Allowance(alice, bob).Uint64())
}

func TestUnlimitedAllowance(t *testing.T) {
	w := ledger.NewWorld(ledger.Config{ChainID: 1}, nil)
	tok := deploy(t, w)

	_, err := w.Execute(alice, func(call *ledger.Call) error {
		if err := tok.Mint(call, uint256.NewInt(100)); err != nil {
			return err
		}
		return tok.Approve(call, bob, maxAllowance)
	})
	require.NoError(t, err)

	_, err = w.Execute(bob, func(call *ledger.Call) error {
		return tok.TransferFrom(call, alice, bob, uint256.NewInt(100))
	})
	require.NoError(t, err)
	assert.True(t, tok.Allowance(alice, bob).Eq(maxAllowance))
}

func TestTransferToZeroAddress(t *testing.T) {
	w := ledger.NewWorld(ledger.Config{ChainID: 1}, nil)
	tok := deploy(t, w)

	_, err := w.Execute(alice, func(call *ledger.Call) error {
		if err := tok.Mint(call, uint256.NewInt(1)); err != nil {
			return err
		}
		return tok.Transfer(call, common.Address{}, uint256.NewInt(1))
	})
	require.ErrorIs(t, err, ErrInvalidReceiver)
}

func TestSupportsInterface(t *testing.T) {
	tok := New(alice, "Dex Token", "DEX", 18)
	assert.Equal(t, capability.Supported, capability.Probe(tok, capability.ERC20))
	assert.Equal(t, capability.Supported, capability.Probe(tok, capability.ERC165))
	assert.Equal(t, capability.Unsupported, capability.Probe(tok, capability.PoolFactory))
	assert.Equal(t, capability.Unsupported, capability.Probe(tok, capability.Invalid))
}
