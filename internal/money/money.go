// Package money converts between decimal amounts and the integer cents
// persisted in Postgres.
package money

import "github.com/shopspring/decimal"

var Zero = decimal.Zero

// Round2 rounds half away from zero to the minor currency unit.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

func FromCents(c int64) decimal.Decimal { return decimal.New(c, -2) }

func ToCents(d decimal.Decimal) int64 { return d.Round(2).Shift(2).IntPart() }

// MustParse is for constants and tests only.
func MustParse(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Format renders d with exactly two decimals, e.g. "49.19".
func Format(d decimal.Decimal) string { return d.StringFixed(2) }
