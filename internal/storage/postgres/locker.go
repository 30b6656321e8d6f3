package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (table_number, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	lockOrderNowaitSQL = lockOrderSQL + ` NOWAIT`

	lockItemsSQL = `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = $1 ORDER BY id FOR UPDATE`
)

// LockConfig bounds how long a locked transaction may wait and run.
type LockConfig struct {
	// Timeout is the lock_timeout applied to row lock acquisition.
	Timeout time.Duration
	// StatementTimeout caps every statement in the transaction.
	StatementTimeout time.Duration
	// AcquireAttempts is how many times lock acquisition is restarted
	// after a serialization failure raised while waiting for the row.
	AcquireAttempts int
}

func (c *LockConfig) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = 2 * c.Timeout
	}
	if c.AcquireAttempts <= 0 {
		c.AcquireAttempts = 3
	}
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithTracerProvider sets the provider for "order.lock" spans.
func WithTracerProvider(tp trace.TracerProvider) LockerOption {
	return func(l *Locker) {
		if tp != nil {
			l.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the provider for the lock wait histogram.
func WithMeterProvider(mp metric.MeterProvider) LockerOption {
	return func(l *Locker) {
		if mp != nil {
			l.meterProvider = mp
		}
	}
}

var _ order.Locker = (*Locker)(nil)

// Locker implements order.Locker with SERIALIZABLE transactions and
// SELECT ... FOR UPDATE row locks.
//
// Under SERIALIZABLE, a transaction that waited for a row lock held by a
// committing writer fails with 40001 instead of reading the new row. Such a
// failure raised by the lock statement itself, before the callback ran, is
// retried in a fresh transaction so the callback sees the committed state.
// Failures after the callback started are returned to the caller.
type Locker struct {
	pool *pgxpool.Pool
	cfg  LockConfig

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	lockWait       metric.Float64Histogram
}

// NewLocker creates a Locker.
func NewLocker(pool *pgxpool.Pool, cfg LockConfig, opts ...LockerOption) (*Locker, error) {
	cfg.setDefaults()
	l := &Locker{
		pool:           pool,
		cfg:            cfg,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(l)
	}
	const name = "github.com/phongit-kha/pos-lmwn/internal/storage/postgres"
	l.tracer = l.tracerProvider.Tracer(name)

	hist, err := l.meterProvider.Meter(name).Float64Histogram("pos.order.lock.wait",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent acquiring order row locks"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create lock wait histogram")
	}
	l.lockWait = hist
	return l, nil
}

type lockMode string

const (
	modeWait   lockMode = "wait"
	modeNowait lockMode = "nowait"
	modeMulti  lockMode = "multi"
)

// CreateOrder implements order.Locker.
func (l *Locker) CreateOrder(ctx context.Context, o order.Order, fn order.TxFunc) error {
	ctx, span := l.tracer.Start(ctx, "order.create",
		trace.WithAttributes(attribute.Int("order.table", o.TableNumber)),
	)
	defer span.End()

	err := l.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertOrderSQL,
			o.TableNumber, string(o.Status), o.CreatedAt, o.UpdatedAt,
		).Scan(&o.ID); err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}
		span.SetAttributes(attribute.Int64("order.id", o.ID))
		return fn(ctx, &pgTx{tx: tx}, order.NewSnapshot(o, nil))
	})
	if err != nil {
		err = mapError(err, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// WithOrderLock implements order.Locker.
func (l *Locker) WithOrderLock(ctx context.Context, orderID int64, fn order.TxFunc) error {
	return l.lock(ctx, []int64{orderID}, modeWait, single(fn))
}

// TryOrderLock implements order.Locker.
func (l *Locker) TryOrderLock(ctx context.Context, orderID int64, fn order.TxFunc) error {
	return l.lock(ctx, []int64{orderID}, modeNowait, single(fn))
}

// WithOrdersLock implements order.Locker.
func (l *Locker) WithOrdersLock(ctx context.Context, orderIDs []int64, fn order.MultiTxFunc) error {
	ids := slices.Clone(orderIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return l.lock(ctx, ids, modeMulti, fn)
}

func single(fn order.TxFunc) order.MultiTxFunc {
	return func(ctx context.Context, tx order.Tx, snaps []order.Snapshot) error {
		return fn(ctx, tx, snaps[0])
	}
}

func (l *Locker) lock(ctx context.Context, ids []int64, mode lockMode, fn order.MultiTxFunc) error {
	ctx, span := l.tracer.Start(ctx, "order.lock", trace.WithAttributes(
		attribute.Int64Slice("order.ids", ids),
		attribute.String("lock.mode", string(mode)),
	))
	defer span.End()

	var err error
	for attempt := 1; attempt <= l.cfg.AcquireAttempts; attempt++ {
		var retry bool
		retry, err = l.attempt(ctx, ids, mode, fn)
		if !retry {
			break
		}
		span.AddEvent("lock.retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
		zctx.From(ctx).Debug("Retrying order lock",
			zap.Int64s("order_ids", ids),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	if err != nil {
		err = mapError(err, mode == modeNowait)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// attempt runs one locked transaction. retry is true only when the lock
// statement failed with a serialization error before fn was invoked.
func (l *Locker) attempt(ctx context.Context, ids []int64, mode lockMode, fn order.MultiTxFunc) (retry bool, _ error) {
	lockSQL := lockOrderSQL
	if mode == modeNowait {
		lockSQL = lockOrderNowaitSQL
	}

	err := l.inTx(ctx, func(tx pgx.Tx) error {
		start := time.Now()
		snaps := make([]order.Snapshot, 0, len(ids))
		for _, id := range ids {
			rows, err := tx.Query(ctx, lockSQL, id)
			if err != nil {
				retry = isSerializationFailure(err)
				return fmt.Errorf("locking order %d: %w", id, err)
			}
			o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return &order.OrderNotFoundError{OrderID: id}
				}
				retry = isSerializationFailure(err)
				return fmt.Errorf("locking order %d: %w", id, err)
			}
			rows, err = tx.Query(ctx, lockItemsSQL, id)
			if err != nil {
				return fmt.Errorf("locking items of order %d: %w", id, err)
			}
			items, err := pgx.CollectRows(rows, scanItem)
			if err != nil {
				return fmt.Errorf("locking items of order %d: %w", id, err)
			}
			snaps = append(snaps, order.NewSnapshot(o, items))
		}
		l.lockWait.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("mode", string(mode))),
		)
		return fn(ctx, &pgTx{tx: tx}, snaps)
	})
	return retry, err
}

// inTx runs fn in a SERIALIZABLE transaction with bounded lock and
// statement timeouts. A commit failure is returned like any other error.
func (l *Locker) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", l.cfg.Timeout.Milliseconds())); err != nil {
		return fmt.Errorf("setting lock timeout: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", l.cfg.StatementTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("setting statement timeout: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
