package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInvalid is returned by Validate for a malformed product.
	ErrInvalid = errors.New("invalid product")
)

// Product is a menu item. Order items copy its name and price when they are
// added, so later edits never reach existing orders.
type Product struct {
	ID        int64
	Name      string
	Price     money.Amount
	Category  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListFilter narrows a product listing.
type ListFilter struct {
	Category   string
	ActiveOnly bool
	Page       int
	Limit      int
}

// Page is one page of products plus the total match count.
type Page struct {
	Items []Product
	Total int
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context, filter ListFilter) (Page, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
}

// Validate normalizes and checks a product before it is written.
func Validate(p *Product) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	switch {
	case p.Name == "":
		return errors.Wrap(ErrInvalid, "name is required")
	case len(p.Name) > 200:
		return errors.Wrap(ErrInvalid, "name must be at most 200 characters")
	case p.Category == "":
		return errors.Wrap(ErrInvalid, "category is required")
	case p.Price < 0:
		return errors.Wrap(ErrInvalid, "price must not be negative")
	}
	return nil
}
