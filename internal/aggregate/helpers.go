package aggregate

import (
	"math/big"
)

const (
	ratioScale    = 18
	secondsInYear = 365 * 24 * 60 * 60
)

// formatTokenAmount renders a base-unit amount as a decimal with the token's
// precision. Zero decimals leave the base units untouched.
func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(value, scale).FloatString(int(decimals))
}

// feeRate is fee/tvl, or nil when either side is zero or unknown.
func feeRate(fee, tvl *big.Int) *big.Rat {
	if fee == nil || tvl == nil || fee.Sign() == 0 || tvl.Sign() <= 0 {
		return nil
	}
	return new(big.Rat).SetFrac(fee, tvl)
}

func ratString(r *big.Rat) *string {
	if r == nil {
		return nil
	}
	s := r.FloatString(ratioScale)
	return &s
}

// computeFeeRates returns the per-asset fee yield of a window.
func computeFeeRates(fee0, fee1, tvl0, tvl1 *big.Int) (*string, *string) {
	return ratString(feeRate(fee0, tvl0)), ratString(feeRate(fee1, tvl1))
}

// computeAPR annualizes the window's fee yield on the whole position.
//
// At the pool's spot price both reserves are worth the same, so fees worth
// fee0 + fee1*tvl0/tvl1 of token0 are earned on 2*tvl0 of value:
//
//	yield = (fee0/tvl0 + fee1/tvl1) / 2
//	apr   = yield * secondsInYear / windowSeconds
func computeAPR(fee0, fee1, tvl0, tvl1 *big.Int, windowSeconds uint64) *string {
	if windowSeconds == 0 || tvl0 == nil || tvl1 == nil || tvl0.Sign() <= 0 || tvl1.Sign() <= 0 {
		return nil
	}
	yield := new(big.Rat)
	for _, rate := range []*big.Rat{feeRate(fee0, tvl0), feeRate(fee1, tvl1)} {
		if rate != nil {
			yield.Add(yield, rate)
		}
	}
	yield.Mul(yield, big.NewRat(secondsInYear, 2*int64(windowSeconds)))
	return ratString(yield)
}
