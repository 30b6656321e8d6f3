// Package memory implements the order and product storage contracts in
// process memory. Each order is guarded by its own one-slot channel, and
// writes made inside a locked callback are staged and applied only when the
// callback succeeds.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
	"github.com/phongit-kha/pos-lmwn/internal/domain/product"
)

var (
	_ order.Locker     = (*Store)(nil)
	_ order.Repository = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long WithOrderLock waits for a busy order.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// Store is an in-memory order and product store.
type Store struct {
	lockTimeout time.Duration

	mu       sync.Mutex
	locks    map[int64]*orderLock
	orders   map[int64]order.Order
	items    map[int64][]order.Item
	logs     map[int64][]order.LogEntry
	products map[int64]product.Product
	// tables being opened by an in-flight CreateOrder.
	opening map[int]struct{}

	lastOrderID   int64
	lastItemID    int64
	lastLogID     int64
	lastProductID int64
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		lockTimeout: 5 * time.Second,
		locks:       make(map[int64]*orderLock),
		orders:      make(map[int64]order.Order),
		items:       make(map[int64][]order.Item),
		logs:        make(map[int64][]order.LogEntry),
		products:    make(map[int64]product.Product),
		opening:     make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder implements order.Locker.
func (s *Store) CreateOrder(ctx context.Context, o order.Order, fn order.TxFunc) error {
	s.mu.Lock()
	if s.tableBusyLocked(o.TableNumber) {
		s.mu.Unlock()
		return fmt.Errorf("%w: table %d already has an active order", order.ErrConflict, o.TableNumber)
	}
	s.opening[o.TableNumber] = struct{}{}
	s.lastOrderID++
	o.ID = s.lastOrderID
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.opening, o.TableNumber)
		s.mu.Unlock()
	}()

	release, err := s.acquire(ctx, o.ID, false)
	if err != nil {
		return err
	}
	defer release()

	tx := newTx(s, o.ID)
	tx.created = &o
	if err := fn(ctx, tx, order.NewSnapshot(o, nil)); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

// WithOrderLock implements order.Locker.
func (s *Store) WithOrderLock(ctx context.Context, orderID int64, fn order.TxFunc) error {
	return s.withLock(ctx, orderID, true, fn)
}

// TryOrderLock implements order.Locker.
func (s *Store) TryOrderLock(ctx context.Context, orderID int64, fn order.TxFunc) error {
	return s.withLock(ctx, orderID, false, fn)
}

func (s *Store) withLock(ctx context.Context, orderID int64, wait bool, fn order.TxFunc) error {
	if !s.exists(orderID) {
		return &order.OrderNotFoundError{OrderID: orderID}
	}
	release, err := s.acquire(ctx, orderID, wait)
	if err != nil {
		return err
	}
	defer release()

	snap, ok := s.snapshot(orderID)
	if !ok {
		return &order.OrderNotFoundError{OrderID: orderID}
	}
	tx := newTx(s, orderID)
	if err := fn(ctx, tx, snap); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

// WithOrdersLock implements order.Locker.
func (s *Store) WithOrdersLock(ctx context.Context, orderIDs []int64, fn order.MultiTxFunc) error {
	ids := slices.Clone(orderIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	for _, id := range ids {
		if !s.exists(id) {
			return &order.OrderNotFoundError{OrderID: id}
		}
	}
	var releases []func()
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}()
	for _, id := range ids {
		release, err := s.acquire(ctx, id, true)
		if err != nil {
			return err
		}
		releases = append(releases, release)
	}

	snaps := make([]order.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, ok := s.snapshot(id)
		if !ok {
			return &order.OrderNotFoundError{OrderID: id}
		}
		snaps = append(snaps, snap)
	}
	tx := newTx(s, ids...)
	if err := fn(ctx, tx, snaps); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

// orderLock is a one-slot mutex shared by every caller interested in one
// order. It is dropped from Store.locks once nobody holds or waits for it.
type orderLock struct {
	ch   chan struct{}
	refs int
}

func (s *Store) acquire(ctx context.Context, orderID int64, wait bool) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[orderID]
	if !ok {
		l = &orderLock{ch: make(chan struct{}, 1)}
		s.locks[orderID] = l
	}
	l.refs++
	s.mu.Unlock()

	unref := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, orderID)
		}
	}
	release := func() {
		<-l.ch
		unref()
	}
	if !wait {
		select {
		case l.ch <- struct{}{}:
			return release, nil
		default:
			unref()
			return nil, fmt.Errorf("%w: order %d", order.ErrLockUnavailable, orderID)
		}
	}

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case l.ch <- struct{}{}:
		return release, nil
	case <-timer.C:
		unref()
		return nil, fmt.Errorf("%w: waiting for order %d", order.ErrTimeout, orderID)
	case <-ctx.Done():
		unref()
		return nil, ctx.Err()
	}
}

func (s *Store) exists(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orders[orderID]
	return ok
}

func (s *Store) snapshot(orderID int64) (order.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return order.Snapshot{}, false
	}
	return order.NewSnapshot(o, s.items[orderID]), true
}

func (s *Store) tableBusyLocked(table int) bool {
	if _, ok := s.opening[table]; ok {
		return true
	}
	for _, o := range s.orders {
		if o.TableNumber == table && !o.Status.Terminal() {
			return true
		}
	}
	return false
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.created != nil {
		s.orders[tx.created.ID] = *tx.created
	}
	for id, o := range tx.orders {
		s.orders[id] = o
	}
	for orderID, items := range s.items {
		for i, it := range items {
			if updated, ok := tx.updated[it.ID]; ok {
				items[i] = updated
			}
		}
		s.items[orderID] = items
	}
	for _, it := range tx.inserted {
		s.items[it.OrderID] = append(s.items[it.OrderID], it)
	}
	for _, e := range tx.logs {
		s.logs[e.OrderID] = append(s.logs[e.OrderID], e)
	}
}
