package vault

import (
	"errors"
	"math/big"
)

var ErrInvalidGasMargin = errors.New("vault: invalid gas margin args")

// ApplyGasMargin bumps a suggested gas price by marginPercent. Small prices
// can round a percentage bump away entirely, so the result is always at least
// one wei above the input when a positive margin is requested.
func ApplyGasMargin(price *big.Int, marginPercent int) (*big.Int, error) {
	if price == nil || price.Sign() < 0 {
		return nil, ErrInvalidGasMargin
	}
	if marginPercent < 0 {
		return nil, ErrInvalidGasMargin
	}
	if marginPercent == 0 {
		return new(big.Int).Set(price), nil
	}

	out := new(big.Int).Mul(price, big.NewInt(int64(100+marginPercent)))
	out.Div(out, big.NewInt(100))

	min := new(big.Int).Add(price, big.NewInt(1))
	if out.Cmp(min) < 0 {
		out = min
	}
	return out, nil
}
