package order

import (
	"context"
	"time"
)

// Tx is the write side of a locked order transaction. Every call joins the
// transaction opened by the Locker, so nothing is visible to other callers
// until the TxFunc returns nil.
type Tx interface {
	// InsertItems stores new items and returns them with ids assigned.
	InsertItems(ctx context.Context, items []Item) ([]Item, error)
	UpdateItem(ctx context.Context, item Item) error
	UpdateOrder(ctx context.Context, o Order) error
	// AppendLog adds an audit row. Rows are never updated or deleted.
	AppendLog(ctx context.Context, entry LogEntry) (LogEntry, error)
}

// TxFunc runs with one order locked. Returning an error rolls back every
// write made through tx.
type TxFunc func(ctx context.Context, tx Tx, snap Snapshot) error

// MultiTxFunc runs with several orders locked. Snapshots are sorted by
// ascending order id.
type MultiTxFunc func(ctx context.Context, tx Tx, snaps []Snapshot) error

// Locker serializes mutations of one order. Implementations lock the order
// row (and its items) for the whole transaction, take the snapshot after the
// lock is granted, commit when fn returns nil and roll back otherwise.
type Locker interface {
	// CreateOrder inserts o and runs fn in the same transaction with a
	// snapshot of the new order. A second active order for the same table
	// fails with ErrConflict.
	CreateOrder(ctx context.Context, o Order, fn TxFunc) error
	// WithOrderLock blocks until the order is available or the configured
	// wait elapses, failing with ErrTimeout.
	WithOrderLock(ctx context.Context, orderID int64, fn TxFunc) error
	// TryOrderLock fails with ErrLockUnavailable instead of waiting.
	TryOrderLock(ctx context.Context, orderID int64, fn TxFunc) error
	// WithOrdersLock locks all ids in ascending order before fn runs.
	WithOrdersLock(ctx context.Context, orderIDs []int64, fn MultiTxFunc) error
}

// ListFilter narrows an order listing. Zero values mean "any".
type ListFilter struct {
	Status      Status
	TableNumber int
	From        time.Time
	To          time.Time
	Page        int
	Limit       int
}

// Page is one page of orders plus the total match count.
type Page struct {
	Items []Order
	Total int
}

// Repository is the read side of order storage.
type Repository interface {
	// Get returns the order with its items and audit trail.
	Get(ctx context.Context, id int64) (*Aggregate, error)
	List(ctx context.Context, filter ListFilter) (Page, error)
	// ListIdle returns ids of OPEN orders not updated since before, oldest
	// first.
	ListIdle(ctx context.Context, before time.Time, limit int) ([]int64, error)
}
