// Package report aggregates sales figures over PAID orders.
package report

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

const (
	// DefaultSpan is the range used when the caller gives no bounds.
	DefaultSpan = 30 * 24 * time.Hour
	// MaxSpan is the widest accepted range.
	MaxSpan = 366 * 24 * time.Hour
)

// Range is a half-open time interval [From, To).
type Range struct {
	From time.Time
	To   time.Time
}

// DailySales is revenue for one calendar day in the report time zone.
type DailySales struct {
	Date       time.Time
	Orders     int
	Subtotal   money.Amount
	Discount   money.Amount
	GrandTotal money.Amount
}

// CategorySales is pre-discount revenue of active items per category.
type CategorySales struct {
	Category string
	Quantity int
	Revenue  money.Amount
}

// ProductSales is pre-discount revenue of active items per product.
type ProductSales struct {
	ProductID   int64
	ProductName string
	Quantity    int
	Revenue     money.Amount
}

// HourlySales is revenue per hour of day (0-23) in the report time zone.
type HourlySales struct {
	Hour       int
	Orders     int
	GrandTotal money.Amount
}

// TableSales is revenue per table.
type TableSales struct {
	TableNumber   int
	Orders        int
	GrandTotal    money.Amount
	AverageTicket money.Amount
}

// VoidReason groups voided items of PAID and CANCELLED orders by reason.
type VoidReason struct {
	Reason   string
	Items    int
	Quantity int
	Amount   money.Amount
}

// VoidAnalysis summarizes voided items.
type VoidAnalysis struct {
	Items     int
	Quantity  int
	Amount    money.Amount
	ByReason  []VoidReason
	ByProduct []ProductSales
}

// Summary is the headline figure set for a range.
type Summary struct {
	PaidOrders      int
	CancelledOrders int
	ItemsSold       int
	GrossSales      money.Amount
	Discounts       money.Amount
	NetSales        money.Amount
	AverageTicket   money.Amount
}

// Store runs the aggregate queries. Implementations read one consistent
// snapshot per call.
type Store interface {
	SalesByDate(ctx context.Context, r Range, loc *time.Location) ([]DailySales, error)
	SalesByCategory(ctx context.Context, r Range) ([]CategorySales, error)
	SalesByProduct(ctx context.Context, r Range, limit int) ([]ProductSales, error)
	SalesByHour(ctx context.Context, r Range, loc *time.Location) ([]HourlySales, error)
	SalesByTable(ctx context.Context, r Range) ([]TableSales, error)
	VoidAnalysis(ctx context.Context, r Range) (VoidAnalysis, error)
	Summary(ctx context.Context, r Range) (Summary, error)
}

// Service validates report ranges and delegates to a Store.
type Service struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

// NewService creates a report Service. A nil loc means UTC.
func NewService(store Store, loc *time.Location, now func() time.Time) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, loc: loc, now: now}
}

// Location returns the time zone used for day and hour buckets.
func (s *Service) Location() *time.Location { return s.loc }

// Resolve fills in missing bounds and validates the range. With no bounds
// the range covers the last DefaultSpan.
func (s *Service) Resolve(r Range) (Range, error) {
	switch {
	case r.From.IsZero() && r.To.IsZero():
		r.To = s.now()
		r.From = r.To.Add(-DefaultSpan)
	case r.From.IsZero():
		r.From = r.To.Add(-DefaultSpan)
	case r.To.IsZero():
		r.To = r.From.Add(DefaultSpan)
	}
	if !r.From.Before(r.To) {
		return Range{}, errors.Wrap(order.ErrValidation, "from must be before to")
	}
	if r.To.Sub(r.From) > MaxSpan {
		return Range{}, errors.Wrap(order.ErrValidation, "range must not exceed 366 days")
	}
	return r, nil
}

// SalesByDate returns daily revenue.
func (s *Service) SalesByDate(ctx context.Context, r Range) ([]DailySales, error) {
	r, err := s.Resolve(r)
	if err != nil {
		return nil, err
	}
	return s.store.SalesByDate(ctx, r, s.loc)
}

// SalesByCategory returns revenue per product category.
func (s *Service) SalesByCategory(ctx context.Context, r Range) ([]CategorySales, error) {
	r, err := s.Resolve(r)
	if err != nil {
		return nil, err
	}
	return s.store.SalesByCategory(ctx, r)
}

// SalesByProduct returns the best selling products, at most limit of them.
func (s *Service) SalesByProduct(ctx context.Context, r Range, limit int) ([]ProductSales, error) {
	r, err := s.Resolve(r)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.SalesByProduct(ctx, r, limit)
}

// SalesByHour returns revenue per hour of day.
func (s *Service) SalesByHour(ctx context.Context, r Range) ([]HourlySales, error) {
	r, err := s.Resolve(r)
	if err != nil {
		return nil, err
	}
	return s.store.SalesByHour(ctx, r, s.loc)
}

// SalesByTable returns revenue per table.
func (s *Service) SalesByTable(ctx context.Context, r Range) ([]TableSales, error) {
	r, err := s.Resolve(r)
	if err != nil {
		return nil, err
	}
	return s.store.SalesByTable(ctx, r)
}

// VoidAnalysis returns voided item statistics.
func (s *Service) VoidAnalysis(ctx context.Context, r Range) (VoidAnalysis, error) {
	r, err := s.Resolve(r)
	if err != nil {
		return VoidAnalysis{}, err
	}
	return s.store.VoidAnalysis(ctx, r)
}

// Summary returns headline figures.
func (s *Service) Summary(ctx context.Context, r Range) (Summary, error) {
	r, err := s.Resolve(r)
	if err != nil {
		return Summary{}, err
	}
	return s.store.Summary(ctx, r)
}
