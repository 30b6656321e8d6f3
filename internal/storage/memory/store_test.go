package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

func noop(context.Context, order.Tx, order.Snapshot) error { return nil }

func createOrder(t *testing.T, s *Store, table int, updated time.Time) int64 {
	t.Helper()
	var id int64
	err := s.CreateOrder(context.Background(), order.Order{
		TableNumber: table,
		Status:      order.StatusOpen,
		CreatedAt:   updated,
		UpdatedAt:   updated,
	}, func(ctx context.Context, tx order.Tx, snap order.Snapshot) error {
		id = snap.Order.ID
		_, err := tx.AppendLog(ctx, order.LogEntry{OrderID: id, Action: order.ActionCreate})
		return err
	})
	require.NoError(t, err)
	return id
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	s := New()

	id := createOrder(t, s, 4, time.Now())
	agg, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, agg.Order.TableNumber)
	require.Len(t, agg.Logs, 1)
	assert.Equal(t, order.ActionCreate, agg.Logs[0].Action)

	err = s.CreateOrder(ctx, order.Order{TableNumber: 4, Status: order.StatusOpen}, noop)
	require.ErrorIs(t, err, order.ErrConflict)
}

func TestCreateOrder_Rollback(t *testing.T) {
	ctx := context.Background()
	s := New()

	var id int64
	err := s.CreateOrder(ctx, order.Order{TableNumber: 2, Status: order.StatusOpen},
		func(_ context.Context, _ order.Tx, snap order.Snapshot) error {
			id = snap.Order.ID
			return errors.New("boom")
		})
	require.Error(t, err)

	_, err = s.Get(ctx, id)
	require.ErrorIs(t, err, order.ErrNotFound)

	// The table is free again.
	createOrder(t, s, 2, time.Now())
}

func TestWithOrderLock_StagedWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := createOrder(t, s, 1, time.Now())

	err := s.WithOrderLock(ctx, id, func(ctx context.Context, tx order.Tx, snap order.Snapshot) error {
		items, err := tx.InsertItems(ctx, []order.Item{{OrderID: id, ProductID: 1, Quantity: 1, Status: order.ItemActive}})
		require.NoError(t, err)
		require.NotZero(t, items[0].ID)
		snap.Order.Status = order.StatusConfirmed
		require.NoError(t, tx.UpdateOrder(ctx, snap.Order))
		return errors.New("abort")
	})
	require.Error(t, err)

	agg, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusOpen, agg.Order.Status)
	assert.Empty(t, agg.Items)

	err = s.WithOrderLock(ctx, id, func(ctx context.Context, tx order.Tx, snap order.Snapshot) error {
		items, err := tx.InsertItems(ctx, []order.Item{{OrderID: id, ProductID: 1, Quantity: 1, Status: order.ItemActive}})
		if err != nil {
			return err
		}
		items[0].Quantity = 3
		return tx.UpdateItem(ctx, items[0])
	})
	require.NoError(t, err)

	agg, err = s.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, agg.Items, 1)
	assert.Equal(t, 3, agg.Items[0].Quantity)
}

func TestWithOrderLock_NotFound(t *testing.T) {
	err := New().WithOrderLock(context.Background(), 99, noop)
	var nf *order.OrderNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(99), nf.OrderID)
}

func TestTx_RejectsUnlockedOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := createOrder(t, s, 1, time.Now())
	b := createOrder(t, s, 2, time.Now())

	err := s.WithOrderLock(ctx, a, func(ctx context.Context, tx order.Tx, _ order.Snapshot) error {
		return tx.UpdateOrder(ctx, order.Order{ID: b, Status: order.StatusCancelled})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not locked")
}

func TestLockContention(t *testing.T) {
	ctx := context.Background()
	s := New(WithLockTimeout(50 * time.Millisecond))
	id := createOrder(t, s, 1, time.Now())

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithOrderLock(ctx, id, func(context.Context, order.Tx, order.Snapshot) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := s.TryOrderLock(ctx, id, noop)
	require.ErrorIs(t, err, order.ErrLockUnavailable)

	err = s.WithOrderLock(ctx, id, noop)
	require.ErrorIs(t, err, order.ErrTimeout)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = s.WithOrderLock(cctx, id, noop)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, s.TryOrderLock(ctx, id, noop))
	assert.Zero(t, lockEntries(s), "released locks are dropped")
}

func lockEntries(s *Store) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func TestLocksAreReleased(t *testing.T) {
	ctx := context.Background()
	s := New()
	for table := 1; table <= 50; table++ {
		id := createOrder(t, s, table, time.Now())
		require.NoError(t, s.WithOrderLock(ctx, id, noop))
		require.Error(t, s.WithOrderLock(ctx, id, func(context.Context, order.Tx, order.Snapshot) error {
			return errors.New("abort")
		}))
	}
	ids := make([]int64, 0, 50)
	for id := int64(1); id <= 50; id++ {
		ids = append(ids, id)
	}
	require.NoError(t, s.WithOrdersLock(ctx, ids, func(context.Context, order.Tx, []order.Snapshot) error { return nil }))
	assert.Zero(t, lockEntries(s))
}

func TestWithOrdersLock(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := createOrder(t, s, 1, time.Now())
	b := createOrder(t, s, 2, time.Now())

	var got []int64
	err := s.WithOrdersLock(ctx, []int64{b, a, b}, func(ctx context.Context, tx order.Tx, snaps []order.Snapshot) error {
		for _, snap := range snaps {
			got = append(got, snap.Order.ID)
			snap.Order.Status = order.StatusCancelled
			if err := tx.UpdateOrder(ctx, snap.Order); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b}, got)

	page, err := s.List(ctx, order.ListFilter{Status: order.StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	err = s.WithOrdersLock(ctx, []int64{a, 42}, noop)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestListIdle(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	old := createOrder(t, s, 1, now.Add(-3*time.Hour))
	older := createOrder(t, s, 2, now.Add(-5*time.Hour))
	createOrder(t, s, 3, now)

	ids, err := s.ListIdle(ctx, now.Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{older, old}, ids)

	ids, err = s.ListIdle(ctx, now.Add(-time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{older}, ids)
}

func TestPaginate(t *testing.T) {
	all := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{1, 2}, paginate(all, 1, 2))
	assert.Equal(t, []int{5}, paginate(all, 3, 2))
	assert.Equal(t, []int{}, paginate(all, 4, 2))
	assert.Equal(t, all, paginate(all, 0, 0))
}
