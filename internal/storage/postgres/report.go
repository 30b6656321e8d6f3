package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
	"github.com/phongit-kha/pos-lmwn/internal/domain/report"
)

// A PAID order is terminal, so its updated_at is the payment time.
const (
	salesByDateSQL = `SELECT (updated_at AT TIME ZONE $3)::date AS day,
			COUNT(*), SUM(subtotal), SUM(subtotal - grand_total), SUM(grand_total)
		FROM orders
		WHERE status = 'PAID' AND updated_at >= $1 AND updated_at < $2
		GROUP BY day
		ORDER BY day`

	salesByCategorySQL = `SELECT p.category, SUM(oi.quantity), SUM(oi.price_per_unit * oi.quantity) AS revenue
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE o.status = 'PAID' AND oi.status = 'ACTIVE'
			AND o.updated_at >= $1 AND o.updated_at < $2
		GROUP BY p.category
		ORDER BY revenue DESC, p.category`

	salesByProductSQL = `SELECT oi.product_id, MAX(oi.product_name), SUM(oi.quantity),
			SUM(oi.price_per_unit * oi.quantity) AS revenue
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status = 'PAID' AND oi.status = 'ACTIVE'
			AND o.updated_at >= $1 AND o.updated_at < $2
		GROUP BY oi.product_id
		ORDER BY revenue DESC, oi.product_id
		LIMIT $3`

	salesByHourSQL = `SELECT EXTRACT(HOUR FROM updated_at AT TIME ZONE $3)::int AS hour,
			COUNT(*), SUM(grand_total)
		FROM orders
		WHERE status = 'PAID' AND updated_at >= $1 AND updated_at < $2
		GROUP BY hour
		ORDER BY hour`

	salesByTableSQL = `SELECT table_number, COUNT(*), SUM(grand_total), AVG(grand_total)
		FROM orders
		WHERE status = 'PAID' AND updated_at >= $1 AND updated_at < $2
		GROUP BY table_number
		ORDER BY table_number`

	voidTotalsSQL = `SELECT COUNT(*), COALESCE(SUM(quantity), 0), COALESCE(SUM(price_per_unit * quantity), 0)
		FROM order_items
		WHERE status = 'VOIDED' AND updated_at >= $1 AND updated_at < $2`

	voidByReasonSQL = `SELECT void_reason, COUNT(*), SUM(quantity), SUM(price_per_unit * quantity) AS amount
		FROM order_items
		WHERE status = 'VOIDED' AND updated_at >= $1 AND updated_at < $2
		GROUP BY void_reason
		ORDER BY amount DESC, void_reason`

	voidByProductSQL = `SELECT product_id, MAX(product_name), SUM(quantity), SUM(price_per_unit * quantity) AS amount
		FROM order_items
		WHERE status = 'VOIDED' AND updated_at >= $1 AND updated_at < $2
		GROUP BY product_id
		ORDER BY amount DESC, product_id`

	summarySQL = `SELECT
			COUNT(*) FILTER (WHERE status = 'PAID'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED'),
			COALESCE(SUM(subtotal) FILTER (WHERE status = 'PAID'), 0),
			COALESCE(SUM(subtotal - grand_total) FILTER (WHERE status = 'PAID'), 0),
			COALESCE(SUM(grand_total) FILTER (WHERE status = 'PAID'), 0),
			COALESCE(AVG(grand_total) FILTER (WHERE status = 'PAID'), 0)
		FROM orders
		WHERE status IN ('PAID', 'CANCELLED') AND updated_at >= $1 AND updated_at < $2`

	itemsSoldSQL = `SELECT COALESCE(SUM(oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status = 'PAID' AND oi.status = 'ACTIVE'
			AND o.updated_at >= $1 AND o.updated_at < $2`
)

var _ report.Store = (*ReportRepository)(nil)

// ReportRepository implements report.Store. Every call reads from one
// REPEATABLE READ snapshot.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository returns a ReportRepository that uses the given pool.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// SalesByDate implements report.Store.
func (r *ReportRepository) SalesByDate(ctx context.Context, rng report.Range, loc *time.Location) ([]report.DailySales, error) {
	var out []report.DailySales
	err := readOnly(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, salesByDateSQL, rng.From, rng.To, loc.String())
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.DailySales, error) {
			var (
				d                           report.DailySales
				day                         time.Time
				subtotal, discount, revenue decimal.Decimal
			)
			err := row.Scan(&day, &d.Orders, &subtotal, &discount, &revenue)
			d.Date = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
			d.Subtotal, d.Discount, d.GrandTotal = amount(subtotal), amount(discount), amount(revenue)
			return d, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sales by date: %w", err)
	}
	return out, nil
}

// SalesByCategory implements report.Store.
func (r *ReportRepository) SalesByCategory(ctx context.Context, rng report.Range) ([]report.CategorySales, error) {
	var out []report.CategorySales
	err := readOnly(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, salesByCategorySQL, rng.From, rng.To)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.CategorySales, error) {
			var (
				c       report.CategorySales
				revenue decimal.Decimal
			)
			err := row.Scan(&c.Category, &c.Quantity, &revenue)
			c.Revenue = amount(revenue)
			return c, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sales by category: %w", err)
	}
	return out, nil
}

// SalesByProduct implements report.Store.
func (r *ReportRepository) SalesByProduct(ctx context.Context, rng report.Range, limit int) ([]report.ProductSales, error) {
	var out []report.ProductSales
	err := readOnly(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, salesByProductSQL, rng.From, rng.To, limit)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, scanProductSales)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sales by product: %w", err)
	}
	return out, nil
}

// SalesByHour implements report.Store.
func (r *ReportRepository) SalesByHour(ctx context.Context, rng report.Range, loc *time.Location) ([]report.HourlySales, error) {
	var out []report.HourlySales
	err := readOnly(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, salesByHourSQL, rng.From, rng.To, loc.String())
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.HourlySales, error) {
			var (
				h       report.HourlySales
				revenue decimal.Decimal
			)
			err := row.Scan(&h.Hour, &h.Orders, &revenue)
			h.GrandTotal = amount(revenue)
			return h, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sales by hour: %w", err)
	}
	return out, nil
}

// SalesByTable implements report.Store.
func (r *ReportRepository) SalesByTable(ctx context.Context, rng report.Range) ([]report.TableSales, error) {
	var out []report.TableSales
	err := readOnly(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, salesByTableSQL, rng.From, rng.To)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.TableSales, error) {
			var (
				t            report.TableSales
				revenue, avg decimal.Decimal
			)
			err := row.Scan(&t.TableNumber, &t.Orders, &revenue, &avg)
			t.GrandTotal, t.AverageTicket = amount(revenue), amount(avg)
			return t, err
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sales by table: %w", err)
	}
	return out, nil
}

// VoidAnalysis implements report.Store. Items are bucketed by the time they
// were voided.
func (r *ReportRepository) VoidAnalysis(ctx context.Context, rng report.Range) (report.VoidAnalysis, error) {
	var va report.VoidAnalysis
	err := readOnly(ctx, r.pool, func(tx pgx.Tx) error {
		var total decimal.Decimal
		if err := tx.QueryRow(ctx, voidTotalsSQL, rng.From, rng.To).Scan(&va.Items, &va.Quantity, &total); err != nil {
			return err
		}
		va.Amount = amount(total)

		rows, err := tx.Query(ctx, voidByReasonSQL, rng.From, rng.To)
		if err != nil {
			return err
		}
		va.ByReason, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.VoidReason, error) {
			var (
				v   report.VoidReason
				sum decimal.Decimal
			)
			err := row.Scan(&v.Reason, &v.Items, &v.Quantity, &sum)
			v.Amount = amount(sum)
			return v, err
		})
		if err != nil {
			return err
		}

		rows, err = tx.Query(ctx, voidByProductSQL, rng.From, rng.To)
		if err != nil {
			return err
		}
		va.ByProduct, err = pgx.CollectRows(rows, scanProductSales)
		return err
	})
	if err != nil {
		return report.VoidAnalysis{}, fmt.Errorf("void analysis: %w", err)
	}
	return va, nil
}

// Summary implements report.Store.
func (r *ReportRepository) Summary(ctx context.Context, rng report.Range) (report.Summary, error) {
	var s report.Summary
	err := readOnly(ctx, r.pool, func(tx pgx.Tx) error {
		var gross, discounts, net, avg decimal.Decimal
		if err := tx.QueryRow(ctx, summarySQL, rng.From, rng.To).Scan(
			&s.PaidOrders, &s.CancelledOrders, &gross, &discounts, &net, &avg,
		); err != nil {
			return err
		}
		s.GrossSales, s.Discounts, s.NetSales, s.AverageTicket = amount(gross), amount(discounts), amount(net), amount(avg)
		return tx.QueryRow(ctx, itemsSoldSQL, rng.From, rng.To).Scan(&s.ItemsSold)
	})
	if err != nil {
		return report.Summary{}, fmt.Errorf("summary: %w", err)
	}
	return s, nil
}

func scanProductSales(row pgx.CollectableRow) (report.ProductSales, error) {
	var (
		p       report.ProductSales
		revenue decimal.Decimal
	)
	err := row.Scan(&p.ProductID, &p.ProductName, &p.Quantity, &revenue)
	p.Revenue = amount(revenue)
	return p, err
}

// amount converts a NUMERIC aggregate to minor units, truncating any
// fractional part produced by AVG.
func amount(d decimal.Decimal) money.Amount {
	return money.Amount(d.Floor().IntPart())
}
