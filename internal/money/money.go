// Package money keeps all currency amounts as int64 minor units (cents).
// Decimals exist only at the JSON boundary; arithmetic on floats is never
// allowed to reach persisted or verified amounts.
package money

import (
	"github.com/shopspring/decimal"
)

// Cents is an amount in the currency's minor unit.
type Cents int64

var hundred = decimal.NewFromInt(100)

// FromDecimal converts a decimal amount (e.g. 19.99) to cents, rounding
// half-up to the nearest cent. 19.99 always becomes exactly 1999.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// Decimal returns the exact decimal representation (1999 -> 19.99).
func (c Cents) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(c)).Div(hundred)
}

// Float renders cents for JSON display. Display only: the float never
// feeds back into arithmetic or verification.
func (c Cents) Float() float64 {
	return c.Decimal().InexactFloat64()
}

// Line returns the line total for a unit price and quantity.
func Line(unit Cents, quantity int) Cents {
	return unit * Cents(quantity)
}
