package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

// Get implements order.Repository.
func (s *Store) Get(_ context.Context, id int64) (*order.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, &order.OrderNotFoundError{OrderID: id}
	}
	snap := order.NewSnapshot(o, s.items[id])
	return &order.Aggregate{
		Order: snap.Order,
		Items: snap.Items,
		Logs:  slices.Clone(s.logs[id]),
	}, nil
}

// List implements order.Repository. Newest orders come first.
func (s *Store) List(_ context.Context, f order.ListFilter) (order.Page, error) {
	s.mu.Lock()
	matched := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if matches(o, f) {
			matched = append(matched, o)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(matched, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return order.Page{Items: paginate(matched, f.Page, f.Limit), Total: len(matched)}, nil
}

// ListIdle implements order.Repository.
func (s *Store) ListIdle(_ context.Context, before time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	idle := make([]order.Order, 0)
	for _, o := range s.orders {
		if o.Status == order.StatusOpen && o.UpdatedAt.Before(before) {
			idle = append(idle, o)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(idle, func(a, b order.Order) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if limit > 0 && len(idle) > limit {
		idle = idle[:limit]
	}
	ids := make([]int64, len(idle))
	for i, o := range idle {
		ids[i] = o.ID
	}
	return ids, nil
}

func matches(o order.Order, f order.ListFilter) bool {
	switch {
	case f.Status != "" && o.Status != f.Status:
		return false
	case f.TableNumber > 0 && o.TableNumber != f.TableNumber:
		return false
	case !f.From.IsZero() && o.CreatedAt.Before(f.From):
		return false
	case !f.To.IsZero() && !o.CreatedAt.Before(f.To):
		return false
	}
	return true
}

func paginate[T any](all []T, page, limit int) []T {
	if limit <= 0 {
		return all
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(all) {
		return []T{}
	}
	end := min(start+limit, len(all))
	return all[start:end]
}
