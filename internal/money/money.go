// Package money provides fixed-point arithmetic for ledger amounts.
// Every value that can be credited to a wallet is an 18-decimal scaled
// integer ("wei") carried as *big.Int in memory and as a decimal string
// in the database. Floating point is never used for credited values.
package money

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the fixed scale of all ledger amounts.
const Decimals = 18

var (
	// Unit is 10^18, one whole USD (or one whole token) in wei.
	Unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

	// ErrInvalidAmount is returned when a string is not a valid wei amount.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Parse converts a decimal wei string ("1250000000000000000") to *big.Int.
// An empty string parses as zero, matching a fresh wallet row.
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// MustParse is Parse for trusted inputs such as constants and test fixtures.
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromUnits scales a whole-unit integer (e.g. whole USD) to wei.
func FromUnits(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), Unit)
}

// Format renders a wei amount as its decimal string for persistence.
func Format(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Neg returns the negation of v without mutating it.
func Neg(v *big.Int) *big.Int {
	return new(big.Int).Neg(v)
}

// ApplyBps multiplies an amount by a basis-point rate (1 bps = 0.01%).
// The result is truncated toward zero, so payouts never round up.
func ApplyBps(amount *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(bps))
	return out.Quo(out, big.NewInt(10000))
}

// Scale converts a raw token amount with the given number of decimals to
// the fixed 18-decimal scale. Tokens with more than 18 decimals are
// truncated.
func Scale(v *big.Int, decimals int) *big.Int {
	if decimals == Decimals {
		return new(big.Int).Set(v)
	}
	if decimals < Decimals {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(Decimals-decimals)), nil)
		return new(big.Int).Mul(v, factor)
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-Decimals)), nil)
	return new(big.Int).Quo(v, factor)
}

// QuoteQty converts a USD wei amount into an asset quantity (18 decimals)
// at the given USD price per whole asset, also in wei:
//
//	qty = usd * 10^18 / price
func QuoteQty(usdWei, priceWei *big.Int) (*big.Int, error) {
	if priceWei == nil || priceWei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive price", ErrInvalidAmount)
	}
	out := new(big.Int).Mul(usdWei, Unit)
	return out.Quo(out, priceWei), nil
}

// QuoteValue is the inverse of QuoteQty: USD value of an asset quantity
// at the given price, truncated.
func QuoteValue(qtyWei, priceWei *big.Int) *big.Int {
	out := new(big.Int).Mul(qtyWei, priceWei)
	return out.Quo(out, Unit)
}

// ParsePrice converts an oracle decimal string ("67123.45") into wei.
// Fractional digits beyond the fixed scale are dropped.
func ParsePrice(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidAmount
	}
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		frac = frac[:Decimals]
	}
	frac += strings.Repeat("0", Decimals-len(frac))
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// FormatUnits renders a wei amount as a human decimal string, trimming
// trailing zeros ("1.25"). Used for API responses and log lines only.
func FormatUnits(v *big.Int) string {
	if v == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Abs(v)
	if v.Sign() < 0 {
		sign = "-"
	}
	q, r := new(big.Int).QuoRem(abs, Unit, new(big.Int))
	if r.Sign() == 0 {
		return sign + q.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%018s", r.String()), "0")
	return sign + q.String() + "." + frac
}
