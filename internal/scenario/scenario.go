// Package scenario runs a YAML-described sequence of transactions against a
// fresh ledger world.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/0xivanov/dex-core/internal/amm"
	"github.com/0xivanov/dex-core/internal/factory"
	"github.com/0xivanov/dex-core/internal/ledger"
	"github.com/0xivanov/dex-core/internal/token"
)

// Actions understood by the runner.
const (
	ActionDeployToken        = "deploy-token"
	ActionDeployPoolTemplate = "deploy-pool-template"
	ActionDeployFactory      = "deploy-factory"
	ActionCreatePool         = "create-pool"
	ActionMint               = "mint"
	ActionApprove            = "approve"
	ActionTransfer           = "transfer"
	ActionAddLiquidity       = "add-liquidity"
	ActionRemoveLiquidity    = "remove-liquidity"
	ActionSwap               = "swap"
	ActionTransferOwnership  = "transfer-ownership"
	ActionClaimOwnership     = "claim-ownership"
)

const (
	defaultSender      = "deployer"
	defaultChainID     = 31337
	defaultGenesisTime = 1_700_000_000
)

// Scenario is the document root.
type Scenario struct {
	ChainID         uint64 `yaml:"chain-id"`
	GenesisTime     uint64 `yaml:"genesis-time"`
	BlockTime       uint64 `yaml:"block-time"`
	ContinueOnError bool   `yaml:"continue-on-error"`
	Steps           []Step `yaml:"steps"`
}

// Step is one transaction. Only the fields its action needs are read.
// Names refer to a contract alias from an earlier step, a 0x address, or an
// account whose address is derived from the name.
type Step struct {
	Name        string `yaml:"name"`
	Action      string `yaml:"action"`
	From        string `yaml:"from"`
	As          string `yaml:"as"`
	ExpectError string `yaml:"expect-error"`

	TokenName string `yaml:"token-name"`
	Symbol    string `yaml:"symbol"`
	Decimals  *uint8 `yaml:"decimals"`

	Factory        string `yaml:"factory"`
	Implementation string `yaml:"implementation"`
	TokenA         string `yaml:"token-a"`
	TokenB         string `yaml:"token-b"`
	Fee            uint32 `yaml:"fee"`

	Token   string `yaml:"token"`
	To      string `yaml:"to"`
	Spender string `yaml:"spender"`
	Amount  string `yaml:"amount"`

	Pool    string `yaml:"pool"`
	Amount0 string `yaml:"amount0"`
	Amount1 string `yaml:"amount1"`
	Share   string `yaml:"share"`
	TokenIn string `yaml:"token-in"`

	NewOwner string `yaml:"new-owner"`
	Direct   bool   `yaml:"direct"`
}

func (s Step) label(i int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("#%d %s", i+1, s.Action)
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if s.ChainID == 0 {
		s.ChainID = defaultChainID
	}
	if s.GenesisTime == 0 {
		s.GenesisTime = defaultGenesisTime
	}
	for i, step := range s.Steps {
		if _, ok := actions[step.Action]; !ok {
			return nil, fmt.Errorf("step %s: unknown action %q", step.label(i), step.Action)
		}
		if step.ExpectError != "" {
			if _, err := LookupError(step.ExpectError); err != nil {
				return nil, fmt.Errorf("step %s: %w", step.label(i), err)
			}
		}
	}
	return &s, nil
}

// AccountAddress derives the address used for a named account.
func AccountAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(name))[12:])
}

var knownErrors = map[string]error{
	"InvalidAddress":             amm.ErrInvalidAddress,
	"InvalidTokens":              amm.ErrInvalidTokens,
	"InvalidFactory":             amm.ErrInvalidFactory,
	"InvalidFee":                 amm.ErrInvalidFee,
	"AlreadyInitialized":         amm.ErrAlreadyInitialized,
	"NotInitialized":             amm.ErrNotInitialized,
	"InvalidLiquidityAllocation": amm.ErrInvalidLiquidityAllocation,
	"InvalidShare":               amm.ErrInvalidShare,
	"InvalidToken":               amm.ErrInvalidToken,
	"InvalidAmount":              amm.ErrInvalidAmount,
	"CapabilityProbe":            amm.ErrCapabilityProbe,
	"ReentrantCall":              amm.ErrReentrantCall,
	"Overflow":                   amm.ErrOverflow,
	"TransferMismatch":           amm.ErrTransferMismatch,
	"InsufficientLiquidity":      amm.ErrInsufficientLiquidity,
	"PoolExists":                 factory.ErrPoolExists,
	"InvalidImplementation":      factory.ErrInvalidImplementation,
	"NotOwner":                   factory.ErrNotOwner,
	"NotPendingOwner":            factory.ErrNotPendingOwner,
	"InsufficientBalance":        token.ErrInsufficientBalance,
	"InsufficientAllowance":      token.ErrInsufficientAllowance,
	"InvalidReceiver":            token.ErrInvalidReceiver,
	"AddressInUse":               ledger.ErrAddressInUse,
	"NoContract":                 ledger.ErrNoContract,
}

// LookupError resolves an error name such as "InvalidShare" or
// "ErrInvalidShare".
func LookupError(name string) (error, error) {
	err, ok := knownErrors[strings.TrimPrefix(strings.TrimSpace(name), "Err")]
	if !ok {
		return nil, fmt.Errorf("unknown error name %q", name)
	}
	return err, nil
}

var errBadAmount = errors.New("invalid amount")

// parseAmount accepts a base-10 integer or "max" for 2^256-1.
func parseAmount(s string) (*uint256.Int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if strings.EqualFold(s, "max") {
		return new(uint256.Int).SetAllOne(), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", errBadAmount, s, err)
	}
	return v, nil
}
