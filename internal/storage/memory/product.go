package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/phongit-kha/pos-lmwn/internal/domain/product"
)

// Products is the product.Repository view of a Store.
type Products struct {
	s *Store
}

var _ product.Repository = (*Products)(nil)

// Products returns the catalog backed by s.
func (s *Store) Products() *Products {
	return &Products{s: s}
}

// List implements product.Repository. Products are ordered by name.
func (r *Products) List(_ context.Context, f product.ListFilter) (product.Page, error) {
	r.s.mu.Lock()
	matched := make([]product.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
			continue
		}
		matched = append(matched, p)
	}
	r.s.mu.Unlock()

	slices.SortFunc(matched, func(a, b product.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return product.Page{Items: paginate(matched, f.Page, f.Limit), Total: len(matched)}, nil
}

// GetByID implements product.Repository.
func (r *Products) GetByID(_ context.Context, id int64) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, fmt.Errorf("getting product %d: %w", id, product.ErrNotFound)
	}
	return &p, nil
}

// GetByIDs implements product.Repository. Missing ids are skipped.
func (r *Products) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Create implements product.Repository.
func (r *Products) Create(_ context.Context, p *product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lastProductID++
	p.ID = r.s.lastProductID
	r.s.products[p.ID] = *p
	return nil
}

// Update implements product.Repository.
func (r *Products) Update(_ context.Context, p *product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[p.ID]; !ok {
		return fmt.Errorf("updating product %d: %w", p.ID, product.ErrNotFound)
	}
	r.s.products[p.ID] = *p
	return nil
}
