package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

const (
	orderColumns = `id, table_number, status, subtotal, discount_type, discount_value, grand_total, created_at, updated_at`

	itemColumns = `id, order_id, product_id, product_name, price_per_unit, quantity, batch_sequence,
		status, COALESCE(void_reason, ''), created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listItemsSQL = `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = $1 ORDER BY id`

	listLogsSQL = `SELECT id, order_id, action, details, created_at
		FROM order_logs WHERE order_id = $1 ORDER BY id`

	listIdleSQL = `SELECT id FROM orders
		WHERE status = 'OPEN' AND updated_at < $1
		ORDER BY updated_at, id
		LIMIT $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Get returns the order with its items and audit trail, read from one
// snapshot.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Aggregate, error) {
	var agg order.Aggregate
	err := readOnly(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, getOrderSQL, id)
		if err != nil {
			return err
		}
		agg.Order, err = pgx.CollectExactlyOneRow(rows, scanOrder)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &order.OrderNotFoundError{OrderID: id}
			}
			return err
		}

		rows, err = tx.Query(ctx, listItemsSQL, id)
		if err != nil {
			return err
		}
		if agg.Items, err = pgx.CollectRows(rows, scanItem); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, listLogsSQL, id)
		if err != nil {
			return err
		}
		agg.Logs, err = pgx.CollectRows(rows, scanLog)
		return err
	})
	if err != nil {
		var nf *order.OrderNotFoundError
		if errors.As(err, &nf) {
			return nil, nf
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &agg, nil
}

// List returns orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) (order.Page, error) {
	where, args := orderFilter(f)
	countSQL := `SELECT COUNT(*) FROM orders` + where
	listSQL := `SELECT ` + orderColumns + ` FROM orders` + where +
		` ORDER BY created_at DESC, id DESC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)

	limit, offset := pageBounds(f.Page, f.Limit)

	var page order.Page
	err := readOnly(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, countSQL, args...).Scan(&page.Total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, listSQL, append(args, limit, offset)...)
		if err != nil {
			return err
		}
		page.Items, err = pgx.CollectRows(rows, scanOrder)
		return err
	})
	if err != nil {
		return order.Page{}, fmt.Errorf("listing orders: %w", err)
	}
	return page, nil
}

// ListIdle implements order.Repository.
func (r *OrderRepository) ListIdle(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, listIdleSQL, before, limit)
	if err != nil {
		return nil, fmt.Errorf("listing idle orders: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("listing idle orders: %w", err)
	}
	return ids, nil
}

// pageBounds converts a 1-based page into LIMIT and OFFSET. A non-positive
// limit means no limit.
func pageBounds(page, limit int) (any, int) {
	if limit <= 0 {
		return nil, 0
	}
	return limit, max(page-1, 0) * limit
}

func orderFilter(f order.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.TableNumber > 0 {
		add("table_number = $%d", f.TableNumber)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                    order.Order
		status               string
		subtotal, grandTotal int64
		discountType         *string
		discountValue        *int64
	)
	err := row.Scan(
		&o.ID, &o.TableNumber, &status, &subtotal, &discountType, &discountValue,
		&grandTotal, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.Subtotal = money.Amount(subtotal)
	o.GrandTotal = money.Amount(grandTotal)
	if discountType != nil && discountValue != nil {
		o.Discount = &money.Discount{Type: money.DiscountType(*discountType), Value: *discountValue}
	}
	return o, err
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it     order.Item
		price  int64
		status string
	)
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &price, &it.Quantity,
		&it.BatchSequence, &status, &it.VoidReason, &it.CreatedAt, &it.UpdatedAt,
	)
	it.PricePerUnit = money.Amount(price)
	it.Status = order.ItemStatus(status)
	return it, err
}

func scanLog(row pgx.CollectableRow) (order.LogEntry, error) {
	var (
		e       order.LogEntry
		action  string
		details []byte
	)
	if err := row.Scan(&e.ID, &e.OrderID, &action, &details, &e.CreatedAt); err != nil {
		return e, err
	}
	e.Action = order.Action(action)
	var err error
	e.Details, err = decodeDetails(details)
	return e, err
}
