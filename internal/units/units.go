// Package units converts between base-unit integers and human decimal
// amounts, the way ERC-20 tooling does with a token's decimals.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
)

// MaxDecimals bounds the precision a token may declare.
const MaxDecimals = 36

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrTooPrecise    = errors.New("amount has more fractional digits than the token supports")
)

// Common denominations for 18-decimal tokens.
const (
	Wei   = 0
	Gwei  = 9
	Ether = 18
)

func scale(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// ParseUnits reads a decimal string such as "1.5" into base units.
// Rounding never happens: extra precision is an error.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	if decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: %d decimals", ErrInvalidAmount, decimals)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %q at %d decimals", ErrTooPrecise, s, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	for _, c := range digits {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if neg {
		out.Neg(out)
	}
	return out, nil
}

// FormatUnits renders v in whole tokens with trailing zeros trimmed.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	if decimals == 0 {
		return v.String()
	}
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(v), scale(decimals), new(big.Int))
	sign := ""
	if v.Sign() < 0 {
		sign = "-"
	}
	if r.Sign() == 0 {
		return sign + q.String()
	}
	frac := r.String()
	frac = strings.Repeat("0", int(decimals)-len(frac)) + frac
	return sign + q.String() + "." + strings.TrimRight(frac, "0")
}

// ParseInteger reads a base-unit integer in decimal or 0x-prefixed hex,
// bounded to 256 bits like an on-chain uint256.
func ParseInteger(s string) (*big.Int, error) {
	v, ok := math.ParseBig256(strings.TrimSpace(s))
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a 256-bit integer", ErrInvalidAmount, s)
	}
	return v, nil
}

// Amount parses either a plain base-unit integer or a value suffixed with
// a unit: "1.5eth", "30 gwei", "100wei", or "250 tok" for a token with the
// given decimals.
func Amount(s string, tokenDecimals uint8) (*big.Int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, u := range []struct {
		suffix   string
		decimals uint8
	}{
		{"gwei", Gwei},
		{"ether", Ether},
		{"eth", Ether},
		{"wei", Wei},
		{"tok", tokenDecimals},
	} {
		if num, ok := strings.CutSuffix(s, u.suffix); ok {
			return ParseUnits(num, u.decimals)
		}
	}
	return ParseInteger(s)
}
