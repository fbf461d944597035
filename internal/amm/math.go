package amm

import (
	"github.com/holiman/uint256"
)

const (
	// FeeDenominator expresses fees in parts per million.
	FeeDenominator = 1_000_000
	// MaxFee is 1%.
	MaxFee = 10_000
)

// ValidFee reports whether fee is in (0, MaxFee].
func ValidFee(fee uint32) bool {
	return fee > 0 && fee <= MaxFee
}

func isZero(x *uint256.Int) bool {
	return x == nil || x.IsZero()
}

func zero() *uint256.Int {
	return new(uint256.Int)
}

func add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

func sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// mulDiv returns floor(a*b/d). The product must fit in 256 bits.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, d), nil
}

// InitialShares returns floor(sqrt(amount0*amount1)), the shares minted by
// the first deposit into an empty pool.
func InitialShares(amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(amount0, amount1)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Sqrt(product), nil
}

// MatchedShares returns the shares each side of a deposit is worth against
// the current reserves. A deposit is acceptable only when both are equal.
func MatchedShares(amount0, amount1, balance0, balance1, totalShares *uint256.Int) (shares0, shares1 *uint256.Int, err error) {
	shares0, err = mulDiv(amount0, totalShares, balance0)
	if err != nil {
		return nil, nil, err
	}
	shares1, err = mulDiv(amount1, totalShares, balance1)
	if err != nil {
		return nil, nil, err
	}
	return shares0, shares1, nil
}

// Payout returns floor(share*balance/totalShares).
func Payout(share, balance, totalShares *uint256.Int) (*uint256.Int, error) {
	return mulDiv(share, balance, totalShares)
}

// FeeAmount returns floor(amountIn*fee/FeeDenominator).
func FeeAmount(amountIn *uint256.Int, fee uint32) (*uint256.Int, error) {
	return mulDiv(amountIn, uint256.NewInt(uint64(fee)), uint256.NewInt(FeeDenominator))
}

// SwapAmountOut applies the fee to amountIn and prices the remainder on the
// constant-product curve:
//
//	withFee = amountIn - floor(amountIn*fee/1e6)
//	out     = floor(withFee*balanceOut / (withFee+balanceIn))
func SwapAmountOut(amountIn, balanceIn, balanceOut *uint256.Int, fee uint32) (*uint256.Int, error) {
	if isZero(balanceIn) || isZero(balanceOut) {
		return nil, ErrInsufficientLiquidity
	}
	feeAmount, err := FeeAmount(amountIn, fee)
	if err != nil {
		return nil, err
	}
	withFee, err := sub(amountIn, feeAmount)
	if err != nil {
		return nil, err
	}
	denominator, err := add(withFee, balanceIn)
	if err != nil {
		return nil, err
	}
	return mulDiv(withFee, balanceOut, denominator)
}
