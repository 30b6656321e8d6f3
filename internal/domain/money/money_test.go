package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pct(v int64) *Discount   { return &Discount{Type: DiscountPercent, Value: v} }
func fixed(v int64) *Discount { return &Discount{Type: DiscountFixed, Value: v} }

func TestItemTotal(t *testing.T) {
	got, err := ItemTotal(1099, 2)
	require.NoError(t, err)
	assert.Equal(t, Amount(2198), got)

	got, err = ItemTotal(1099, 0)
	require.NoError(t, err)
	assert.Equal(t, Zero, got)

	got, err = ItemTotal(math.MaxInt64, 1)
	require.NoError(t, err)
	assert.Equal(t, Amount(math.MaxInt64), got)
}

func TestItemTotal_Overflow(t *testing.T) {
	for _, tt := range []struct {
		name  string
		price Amount
		qty   int
	}{
		{name: "wraps int64", price: 1_000_000, qty: 10_000_000_000_000},
		{name: "max quantity at max price", price: math.MaxInt64, qty: MaxQuantity},
		{name: "negative price", price: -1, qty: 1},
		{name: "negative quantity", price: 1, qty: -1},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ItemTotal(tt.price, tt.qty)
			require.ErrorIs(t, err, ErrOverflow)
		})
	}
}

func TestSubtotal(t *testing.T) {
	tests := []struct {
		name  string
		lines []Line
		want  Amount
	}{
		{name: "no lines", lines: nil, want: 0},
		{
			name:  "all voided",
			lines: []Line{{UnitPrice: 500, Quantity: 2, Voided: true}, {UnitPrice: 100, Quantity: 1, Voided: true}},
			want:  0,
		},
		{
			name:  "voided lines excluded",
			lines: []Line{{UnitPrice: 1099, Quantity: 2}, {UnitPrice: 500, Quantity: 3, Voided: true}, {UnitPrice: 250, Quantity: 1}},
			want:  2448,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Subtotal(tt.lines)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubtotal_Overflow(t *testing.T) {
	_, err := Subtotal([]Line{{UnitPrice: math.MaxInt64, Quantity: 1}, {UnitPrice: 1, Quantity: 1}})
	require.ErrorIs(t, err, ErrOverflow)

	// A voided line never contributes, however large.
	got, err := Subtotal([]Line{{UnitPrice: math.MaxInt64, Quantity: 1}, {UnitPrice: math.MaxInt64, Quantity: 2, Voided: true}})
	require.NoError(t, err)
	assert.Equal(t, Amount(math.MaxInt64), got)
}

func TestDiscountAmount(t *testing.T) {
	tests := []struct {
		name     string
		subtotal Amount
		discount *Discount
		want     Amount
	}{
		{name: "no discount", subtotal: 10000, discount: nil, want: 0},
		{name: "zero percent", subtotal: 10000, discount: pct(0), want: 0},
		{name: "ten percent", subtotal: 10000, discount: pct(10), want: 1000},
		{name: "hundred percent", subtotal: 10000, discount: pct(100), want: 10000},
		// 9999 * 15 / 100 = 1499.85, truncated rather than rounded.
		{name: "percent truncates", subtotal: 9999, discount: pct(15), want: 1499},
		{name: "percent of one unit", subtotal: 1, discount: pct(50), want: 0},
		{name: "fixed", subtotal: 10000, discount: fixed(2500), want: 2500},
		{name: "fixed above subtotal is reported as is", subtotal: 100, discount: fixed(150), want: 150},
		{name: "unknown type", subtotal: 100, discount: &Discount{Type: "BOGUS", Value: 10}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DiscountAmount(tt.subtotal, tt.discount))
		})
	}
}

func TestGrandTotal(t *testing.T) {
	assert.Equal(t, Amount(9000), GrandTotal(10000, 1000))
	assert.Equal(t, Zero, GrandTotal(10000, 10000))
	assert.Equal(t, Zero, GrandTotal(10000, 10001))
}

func TestRecalculate(t *testing.T) {
	lines := []Line{
		{UnitPrice: 10000, Quantity: 1},
		{UnitPrice: 700, Quantity: 2, Voided: true},
	}

	recalc := func(lines []Line, d *Discount) Totals {
		t.Helper()
		got, err := Recalculate(lines, d)
		require.NoError(t, err)
		return got
	}

	got := recalc(lines, pct(10))
	assert.Equal(t, Totals{Subtotal: 10000, Discount: 1000, GrandTotal: 9000}, got)

	// Pure: same input, same output.
	assert.Equal(t, got, recalc(lines, pct(10)))

	got = recalc(lines, fixed(10000))
	assert.Equal(t, Totals{Subtotal: 10000, Discount: 10000, GrandTotal: 0}, got)

	assert.Equal(t, Totals{}, recalc(nil, nil))

	_, err := Recalculate([]Line{{UnitPrice: 1_000_000, Quantity: 10_000_000_000_000}}, nil)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{in: "1099", want: 1099},
		{in: " 42 ", want: 42},
		{in: "10.00", want: 10},
		{in: "-5", want: -5},
		{in: "10.5", wantErr: true},
		{in: "50.0001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "99999999999999999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountString(t *testing.T) {
	assert.Equal(t, "2198", Amount(2198).String())
	assert.Equal(t, "0", Zero.String())
}

func TestParseDiscountType(t *testing.T) {
	got, err := ParseDiscountType("PERCENT")
	require.NoError(t, err)
	assert.Equal(t, DiscountPercent, got)

	_, err = ParseDiscountType("percent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported discount type")
}
