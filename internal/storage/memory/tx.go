package memory

import (
	"context"
	"fmt"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

// memTx stages writes for the orders it holds locks on.
type memTx struct {
	store  *Store
	locked map[int64]struct{}

	created  *order.Order
	orders   map[int64]order.Order
	updated  map[int64]order.Item
	inserted []order.Item
	logs     []order.LogEntry
}

var _ order.Tx = (*memTx)(nil)

func newTx(s *Store, ids ...int64) *memTx {
	locked := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		locked[id] = struct{}{}
	}
	return &memTx{
		store:   s,
		locked:  locked,
		orders:  make(map[int64]order.Order),
		updated: make(map[int64]order.Item),
	}
}

func (tx *memTx) check(orderID int64) error {
	if _, ok := tx.locked[orderID]; !ok {
		return fmt.Errorf("order %d is not locked by this transaction", orderID)
	}
	return nil
}

func (tx *memTx) InsertItems(_ context.Context, items []order.Item) ([]order.Item, error) {
	out := make([]order.Item, len(items))
	for i, it := range items {
		if err := tx.check(it.OrderID); err != nil {
			return nil, err
		}
		tx.store.mu.Lock()
		tx.store.lastItemID++
		it.ID = tx.store.lastItemID
		tx.store.mu.Unlock()
		out[i] = it
	}
	tx.inserted = append(tx.inserted, out...)
	return out, nil
}

func (tx *memTx) UpdateItem(_ context.Context, item order.Item) error {
	if err := tx.check(item.OrderID); err != nil {
		return err
	}
	for i, it := range tx.inserted {
		if it.ID == item.ID {
			tx.inserted[i] = item
			return nil
		}
	}
	tx.updated[item.ID] = item
	return nil
}

func (tx *memTx) UpdateOrder(_ context.Context, o order.Order) error {
	if err := tx.check(o.ID); err != nil {
		return err
	}
	if o.Discount != nil {
		d := *o.Discount
		o.Discount = &d
	}
	tx.orders[o.ID] = o
	return nil
}

func (tx *memTx) AppendLog(_ context.Context, e order.LogEntry) (order.LogEntry, error) {
	if err := tx.check(e.OrderID); err != nil {
		return order.LogEntry{}, err
	}
	tx.store.mu.Lock()
	tx.store.lastLogID++
	e.ID = tx.store.lastLogID
	tx.store.mu.Unlock()
	tx.logs = append(tx.logs, e)
	return e, nil
}
