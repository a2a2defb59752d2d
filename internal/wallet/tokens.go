package wallet

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// tokenDecimals maps token types to the number of decimal places in
// their smallest on-chain unit.
var tokenDecimals = map[string]int32{
	"BTC":  8,
	"ETH":  18,
	"SOL":  9,
	"SUI":  9,
	"APT":  8,
	"DOT":  10,
	"ADA":  6,
	"USDT": 6,
	"USDC": 6,
	"DAI":  18,
}

// DefaultDecimals is applied to token types outside the table. This is
// a known precision limitation: an unknown token with a different
// scale will have its volume misreported by powers of ten.
const DefaultDecimals int32 = 8

// Decimals returns the decimal places for a token type.
func Decimals(tokenType string) int32 {
	if d, ok := tokenDecimals[tokenType]; ok {
		return d
	}
	return DefaultDecimals
}

// Normalize converts a raw integer amount in the token's smallest unit
// to a decimal amount in whole tokens.
func Normalize(rawAmount, tokenType string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", rawAmount, err)
	}
	return d.Shift(-Decimals(tokenType)), nil
}
