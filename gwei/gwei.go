// Package gwei provides arbitrary-precision integer arithmetic for reward
// amounts. Beacon API responses carry decimal-string integers; summed across
// millions of validators over months these exceed 64 bits, so every amount
// that touches disk or a reward computation flows through big.Int here.
package gwei

import (
	"math/big"

	"github.com/pkg/errors"
)

// GweiPerIncrement is the granularity effective balance is rounded to before
// an ideal-rewards table lookup.
var GweiPerIncrement = big.NewInt(1_000_000_000)

// Zero returns a fresh zero-valued amount. Never share a *big.Int across
// callers without copying; big.Int methods mutate the receiver.
func Zero() *big.Int { return new(big.Int) }

// Parse converts a beacon API decimal-string integer into a big.Int.
func Parse(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("gwei: invalid decimal integer %q", s)
	}
	return v, nil
}

// RoundDownToIncrement rounds an effective balance down to the nearest
// GweiPerIncrement, matching the key format of the ideal-rewards table.
func RoundDownToIncrement(balance *big.Int) *big.Int {
	if balance.Sign() <= 0 {
		return Zero()
	}
	rounded := new(big.Int).Div(balance, GweiPerIncrement)
	return rounded.Mul(rounded, GweiPerIncrement)
}

// SubClamped returns max(a-b, 0), the missed-reward clamp required for validators
// with zero effective balance.
func SubClamped(a, b *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	if d.Sign() < 0 {
		return Zero()
	}
	return d
}

// Add returns a+b without mutating either argument.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}
