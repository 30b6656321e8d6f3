// Package money implements exact integer arithmetic over the minor currency
// unit (1/100 of the main unit). Floating point never touches an Amount.
package money

import (
	"math"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Amount is a monetary value in minor currency units.
type Amount int64

// Zero is the zero Amount.
const Zero Amount = 0

// String renders the amount as plain decimal digits in minor units.
func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// ErrInvalidAmount is returned by Parse for malformed or fractional input.
var ErrInvalidAmount = errors.New("invalid amount")

// Parse reads an integer amount from its decimal string representation.
// Values with a non-zero fractional part ("10.5") are rejected, "10.00" is
// accepted.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidAmount, "%q", s)
	}
	if !d.IsInteger() {
		return 0, errors.Wrapf(ErrInvalidAmount, "%q is not a whole number of minor units", s)
	}
	if !d.BigInt().IsInt64() {
		return 0, errors.Wrapf(ErrInvalidAmount, "%q is out of range", s)
	}
	return Amount(d.IntPart()), nil
}

// MaxQuantity is the largest quantity a single line may carry.
const MaxQuantity = math.MaxInt32

// ErrOverflow is returned when a total does not fit in an Amount.
var ErrOverflow = errors.New("amount out of range")

// ItemTotal returns pricePerUnit × quantity. Negative operands and products
// that do not fit in an Amount fail with ErrOverflow.
func ItemTotal(price Amount, quantity int) (Amount, error) {
	if price < 0 || quantity < 0 {
		return 0, errors.Wrapf(ErrOverflow, "%s × %d", price, quantity)
	}
	if quantity != 0 && price > Amount(math.MaxInt64/int64(quantity)) {
		return 0, errors.Wrapf(ErrOverflow, "%s × %d", price, quantity)
	}
	return price * Amount(quantity), nil
}

// Line is the money-relevant view of an order item.
type Line struct {
	UnitPrice Amount
	Quantity  int
	Voided    bool
}

// Subtotal sums ItemTotal over lines that are not voided.
func Subtotal(lines []Line) (Amount, error) {
	var sum Amount
	for _, l := range lines {
		if l.Voided {
			continue
		}
		total, err := ItemTotal(l.UnitPrice, l.Quantity)
		if err != nil {
			return 0, err
		}
		if sum > math.MaxInt64-total {
			return 0, errors.Wrap(ErrOverflow, "subtotal")
		}
		sum += total
	}
	return sum, nil
}
