package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

const (
	insertItemSQL = `INSERT INTO order_items
		(order_id, product_id, product_name, price_per_unit, quantity, batch_sequence, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	updateItemSQL = `UPDATE order_items
		SET quantity = $3, status = $4, void_reason = $5, updated_at = $6
		WHERE id = $1 AND order_id = $2`

	updateOrderSQL = `UPDATE orders
		SET status = $2, subtotal = $3, discount_type = $4, discount_value = $5, grand_total = $6, updated_at = $7
		WHERE id = $1`

	insertLogSQL = `INSERT INTO order_logs (order_id, action, details, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
)

// pgTx implements order.Tx on a transaction owned by Locker.
type pgTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*pgTx)(nil)

func (t *pgTx) InsertItems(ctx context.Context, items []order.Item) ([]order.Item, error) {
	out := make([]order.Item, len(items))
	copy(out, items)

	batch := &pgx.Batch{}
	for _, it := range out {
		batch.Queue(insertItemSQL,
			it.OrderID, it.ProductID, it.ProductName, int64(it.PricePerUnit),
			it.Quantity, it.BatchSequence, string(it.Status), it.CreatedAt, it.UpdatedAt,
		)
	}
	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := range out {
		if err := br.QueryRow().Scan(&out[i].ID); err != nil {
			return nil, fmt.Errorf("inserting item for product %d: %w", out[i].ProductID, err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("inserting items: %w", err)
	}
	return out, nil
}

func (t *pgTx) UpdateItem(ctx context.Context, it order.Item) error {
	tag, err := t.tx.Exec(ctx, updateItemSQL,
		it.ID, it.OrderID, it.Quantity, string(it.Status), nullString(it.VoidReason), it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating item %d: %w", it.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &order.ItemNotFoundError{OrderID: it.OrderID, ItemID: it.ID}
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o order.Order) error {
	var (
		discountType  *string
		discountValue *int64
	)
	if o.Discount != nil {
		dt, dv := string(o.Discount.Type), o.Discount.Value
		discountType, discountValue = &dt, &dv
	}
	tag, err := t.tx.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), int64(o.Subtotal), discountType, discountValue, int64(o.GrandTotal), o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &order.OrderNotFoundError{OrderID: o.ID}
	}
	return nil
}

func (t *pgTx) AppendLog(ctx context.Context, e order.LogEntry) (order.LogEntry, error) {
	details := map[string]any(e.Details)
	if details == nil {
		details = map[string]any{}
	}
	if err := t.tx.QueryRow(ctx, insertLogSQL,
		e.OrderID, string(e.Action), details, e.CreatedAt,
	).Scan(&e.ID); err != nil {
		return order.LogEntry{}, fmt.Errorf("appending %s log for order %d: %w", e.Action, e.OrderID, err)
	}
	return e, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
