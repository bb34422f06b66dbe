// Package core provides the receipt domain model and the pure logic built on it.
//
// This file contains the amount codec: conversion between fixed-point decimal
// strings (up to six fractional digits) and integer minor units.
package core

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MinorUnitDecimals is the number of implied decimal places of a receipt amount.
const MinorUnitDecimals = 6

var (
	amountPattern = regexp.MustCompile(`^\d+(\.\d{0,6})?$`)
	unitScale     = uint256.NewInt(1_000_000)
)

// Money is an amount in minor units (10^-6 of one USDC).
type Money struct {
	Units uint256.Int
}

// NewMoney returns a Money holding the given number of minor units.
func NewMoney(units uint64) Money {
	var m Money
	m.Units.SetUint64(units)
	return m
}

// ParseAmount converts a decimal string to minor units.
//
// Accepted input is one or more digits optionally followed by a dot and at most
// six fractional digits. Surrounding whitespace is ignored.
//
// Examples:
//
//	ParseAmount("1")        -> 1000000
//	ParseAmount("1.5")      -> 1500000
//	ParseAmount("0.000001") -> 1
//	ParseAmount("12.")      -> 12000000
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrMissingValue
	}
	if !amountPattern.MatchString(s) {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	frac = (frac + "000000")[:MinorUnitDecimals]

	w, err := uint256.FromDecimal(whole)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	f, err := uint256.FromDecimal(frac)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	var m Money
	if _, overflow := m.Units.MulOverflow(w, unitScale); overflow {
		return Money{}, fmt.Errorf("%w: %q overflows", ErrInvalidFormat, s)
	}
	if _, overflow := m.Units.AddOverflow(&m.Units, f); overflow {
		return Money{}, fmt.Errorf("%w: %q overflows", ErrInvalidFormat, s)
	}
	return m, nil
}

// FormatAmount renders minor units as a decimal string with trailing
// fractional zeros removed. Whole amounts carry no decimal point.
func FormatAmount(m Money) string {
	var whole, frac uint256.Int
	whole.DivMod(&m.Units, unitScale, &frac)

	fs := strings.TrimRight(fmt.Sprintf("%06d", frac.Uint64()), "0")
	if fs == "" {
		return whole.Dec()
	}
	return whole.Dec() + "." + fs
}

// String implements fmt.Stringer using FormatAmount.
func (m Money) String() string {
	return FormatAmount(m)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Units.IsZero()
}

// Cmp compares two amounts and returns -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	return m.Units.Cmp(&o.Units)
}

// Add returns m+o. Sums of on-chain amounts never approach 2^256.
func (m Money) Add(o Money) Money {
	var out Money
	out.Units.Add(&m.Units, &o.Units)
	return out
}

// Decimal returns the amount as a decimal value in whole USDC.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(m.Units.ToBig(), -MinorUnitDecimals)
}

// Float64 returns the amount in whole USDC for chart display only.
// Use Units for arithmetic.
func (m Money) Float64() float64 {
	return m.Decimal().InexactFloat64()
}

// MarshalJSON encodes the minor units as a quoted decimal integer so that
// values above 2^53 survive JavaScript clients.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.Units.Dec() + `"`), nil
}

// UnmarshalJSON accepts a quoted or bare decimal integer of minor units.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return fmt.Errorf("decode money %q: %w", s, err)
	}
	m.Units = *v
	return nil
}
