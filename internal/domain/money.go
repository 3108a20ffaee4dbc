package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (cents).
type Money int64

var maxMoney = decimal.NewFromInt(math.MaxInt64)

// MoneyFromDecimal rounds d half away from zero to whole cents.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Shift(2).Round(0)
	if cents.Abs().GreaterThan(maxMoney) {
		return 0, &ArithmeticError{Op: "convert", Reason: fmt.Sprintf("%s overflows cents", d.String())}
	}
	return Money(cents.IntPart()), nil
}

// MustMoney parses a decimal string such as "9.99". It panics on bad input
// and is meant for defaults and tests.
func MustMoney(s string) Money {
	m, err := MoneyFromDecimal(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Add returns m+o or an ArithmeticError when the sum leaves the int64 range.
func (m Money) Add(o Money) (Money, error) {
	if (o > 0 && m > math.MaxInt64-o) || (o < 0 && m < math.MinInt64-o) {
		return 0, &ArithmeticError{Op: "add", Reason: fmt.Sprintf("%d + %d overflows", m, o)}
	}
	return m + o, nil
}

// Mul returns m*q for a non-negative quantity q.
func (m Money) Mul(q int) (Money, error) {
	if q < 0 {
		return 0, &ArithmeticError{Op: "mul", Reason: "negative multiplier"}
	}
	if q == 0 || m == 0 {
		return 0, nil
	}
	abs := int64(m)
	if abs < 0 {
		abs = -abs
	}
	if abs > math.MaxInt64/int64(q) {
		return 0, &ArithmeticError{Op: "mul", Reason: fmt.Sprintf("%d x %d overflows", m, q)}
	}
	return m * Money(q), nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
