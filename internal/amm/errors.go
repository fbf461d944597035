package amm

import "errors"

var (
	ErrInvalidAddress             = errors.New("invalid address")
	ErrInvalidTokens              = errors.New("invalid tokens")
	ErrInvalidFactory             = errors.New("invalid factory")
	ErrInvalidFee                 = errors.New("invalid fee")
	ErrAlreadyInitialized         = errors.New("already initialized")
	ErrNotInitialized             = errors.New("pool not initialized")
	ErrInvalidLiquidityAllocation = errors.New("invalid liquidity allocation")
	ErrInvalidShare               = errors.New("invalid share")
	ErrInvalidToken               = errors.New("invalid token")
	ErrInvalidAmount              = errors.New("invalid amount")

	// Generic failures. They carry no business meaning beyond "the operation
	// could not run".
	ErrCapabilityProbe       = errors.New("capability probe failed")
	ErrReentrantCall         = errors.New("reentrant call")
	ErrOverflow              = errors.New("arithmetic overflow")
	ErrTransferMismatch      = errors.New("transfer amount mismatch")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)
