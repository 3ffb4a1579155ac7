// Package units converts between internal micro-token amounts and the
// fractional token amounts shown to clients. All accounting inside the
// service is done in int64 micro-tokens; decimals appear only at the
// protocol boundary.
package units

import "github.com/shopspring/decimal"

// MicroPerToken is the number of indivisible micro-tokens in one token.
const MicroPerToken = 1_000_000

var microPerToken = decimal.NewFromInt(MicroPerToken)

// ToMicro converts a display-unit token amount to micro-tokens, flooring
// fractions below one micro-token.
func ToMicro(tokens decimal.Decimal) int64 {
	return tokens.Mul(microPerToken).Floor().IntPart()
}

// ToDisplay converts a micro-token amount to display units.
func ToDisplay(micro int64) decimal.Decimal {
	return decimal.NewFromInt(micro).Div(microPerToken)
}

// DisplayFloat converts a micro-token amount to display units as a
// float64 for JSON payloads. Pool amounts stay far below the range
// where this loses precision.
func DisplayFloat(micro int64) float64 {
	f, _ := ToDisplay(micro).Float64()
	return f
}
