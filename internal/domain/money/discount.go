package money

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported discount strategies.
type DiscountType string

const (
	// DiscountPercent takes a whole-number percentage of the subtotal.
	DiscountPercent DiscountType = "PERCENT"
	// DiscountFixed takes a fixed amount in minor units.
	DiscountFixed DiscountType = "FIXED"
)

// MaxCheckoutPercent is the business cap on PERCENT discounts at checkout.
const MaxCheckoutPercent = 50

var hundred = decimal.NewFromInt(100)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercent || t == DiscountFixed
}

// ParseDiscountType converts a transport value to a DiscountType.
func ParseDiscountType(s string) (DiscountType, error) {
	t := DiscountType(s)
	if !t.Valid() {
		return "", errors.Errorf("unsupported discount type: %q", s)
	}
	return t, nil
}

// Discount describes a discount applied to an order. A nil *Discount means
// no discount.
type Discount struct {
	Type DiscountType
	// Value is a whole percentage for PERCENT and minor units for FIXED.
	Value int64
}

// DiscountAmount computes the discount for the given subtotal. PERCENT
// truncates: 15% of 9999 is 1499.
func DiscountAmount(subtotal Amount, d *Discount) Amount {
	if d == nil {
		return Zero
	}
	switch d.Type {
	case DiscountPercent:
		v := decimal.NewFromInt(int64(subtotal)).
			Mul(decimal.NewFromInt(d.Value)).
			Div(hundred).
			Floor()
		return Amount(v.IntPart())
	case DiscountFixed:
		return Amount(d.Value)
	default:
		return Zero
	}
}

// GrandTotal returns max(0, subtotal - discount).
func GrandTotal(subtotal, discount Amount) Amount {
	if total := subtotal - discount; total > 0 {
		return total
	}
	return Zero
}

// Totals is a consistent subtotal/discount/grand total triple.
type Totals struct {
	Subtotal   Amount
	Discount   Amount
	GrandTotal Amount
}

// Recalculate derives all three totals from the current lines.
func Recalculate(lines []Line, d *Discount) (Totals, error) {
	subtotal, err := Subtotal(lines)
	if err != nil {
		return Totals{}, err
	}
	discount := DiscountAmount(subtotal, d)
	return Totals{
		Subtotal:   subtotal,
		Discount:   discount,
		GrandTotal: GrandTotal(subtotal, discount),
	}, nil
}
