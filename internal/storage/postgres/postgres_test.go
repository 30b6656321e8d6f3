//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
	"github.com/phongit-kha/pos-lmwn/internal/domain/product"
	"github.com/phongit-kha/pos-lmwn/internal/domain/report"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "pos",
				"POSTGRES_PASSWORD": "pos",
				"POSTGRES_DB":       "pos",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = c.Terminate(context.Background()) }()

	host, err := c.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://pos:pos@%s:%s/pos?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	return m.Run()
}

type pgFixture struct {
	svc      *order.Service
	locker   *Locker
	orders   *OrderRepository
	products *ProductRepository
	reports  *ReportRepository
}

func newPGFixture(t *testing.T, cfg LockConfig) *pgFixture {
	t.Helper()
	ctx := context.Background()
	_, err := testPool.Exec(ctx, `TRUNCATE order_logs, order_items, orders, products RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	locker, err := NewLocker(testPool, cfg)
	require.NoError(t, err)
	f := &pgFixture{
		locker:   locker,
		orders:   NewOrderRepository(testPool),
		products: NewProductRepository(testPool),
		reports:  NewReportRepository(testPool),
	}
	f.svc, err = order.NewService(f.locker, f.orders, f.products)
	require.NoError(t, err)
	return f
}

func (f *pgFixture) product(t *testing.T, name, category string, price money.Amount) int64 {
	t.Helper()
	p := &product.Product{Name: name, Category: category, Price: price, IsActive: true}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p.ID
}

func (f *pgFixture) confirmed(t *testing.T, table int, pid int64, qty int) *order.Aggregate {
	t.Helper()
	ctx := context.Background()
	agg, err := f.svc.Create(ctx, order.CreateRequest{TableNumber: table, Items: []order.LineInput{{ProductID: pid, Quantity: qty}}})
	require.NoError(t, err)
	agg, err = f.svc.Confirm(ctx, agg.Order.ID)
	require.NoError(t, err)
	return agg
}

func TestLifecycle(t *testing.T) {
	f := newPGFixture(t, LockConfig{})
	ctx := context.Background()
	pid := f.product(t, "Green Curry", "Mains", 1099)

	agg, err := f.svc.Create(ctx, order.CreateRequest{TableNumber: 5, Items: []order.LineInput{{ProductID: pid, Quantity: 2}}})
	require.NoError(t, err)
	assert.Equal(t, money.Amount(2198), agg.Order.Subtotal)
	assert.Equal(t, money.Amount(2198), agg.Order.GrandTotal)
	id := agg.Order.ID

	agg, err = f.svc.Confirm(ctx, id)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, id)
	require.ErrorIs(t, err, order.ErrInvalidState)

	_, err = f.svc.VoidItem(ctx, id, agg.Items[0].ID, "wrong order")
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, id, order.CheckoutRequest{})
	require.ErrorIs(t, err, order.ErrValidation)

	stored, err := f.orders.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, money.Zero, stored.Order.Subtotal)
	assert.Equal(t, order.ItemVoided, stored.Items[0].Status)
	assert.Equal(t, "wrong order", stored.Items[0].VoidReason)
	require.Len(t, stored.Logs, 3)
	assert.Equal(t, "2198", stored.Logs[0].Details["subtotal"])
	assert.Equal(t, order.ActionVoidItem, stored.Logs[2].Action)
	assert.Equal(t, agg.Items[0].ID, stored.Logs[2].Details["itemId"])
	assert.Equal(t, int64(2), stored.Logs[2].Details["quantity"])
}

func TestCheckoutDiscounts(t *testing.T) {
	f := newPGFixture(t, LockConfig{})
	ctx := context.Background()
	pid := f.product(t, "Steak", "Mains", 10000)

	agg := f.confirmed(t, 1, pid, 1)
	_, err := f.svc.Checkout(ctx, agg.Order.ID, order.CheckoutRequest{
		DiscountType:  money.DiscountFixed,
		DiscountValue: ptr(int64(10001)),
	})
	require.ErrorIs(t, err, order.ErrValidation)

	paid, err := f.svc.Checkout(ctx, agg.Order.ID, order.CheckoutRequest{
		DiscountType:  money.DiscountPercent,
		DiscountValue: ptr(int64(10)),
	})
	require.NoError(t, err)
	assert.Equal(t, money.Amount(9000), paid.Order.GrandTotal)

	stored, err := f.orders.Get(ctx, agg.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, stored.Order.Status)
	require.NotNil(t, stored.Order.Discount)
	assert.Equal(t, money.Discount{Type: money.DiscountPercent, Value: 10}, *stored.Order.Discount)
	assert.Equal(t, "1000", stored.Logs[len(stored.Logs)-1].Details["discountAmount"])
}

func TestConcurrentCheckout(t *testing.T) {
	f := newPGFixture(t, LockConfig{Timeout: 5 * time.Second, AcquireAttempts: 3})
	ctx := context.Background()
	pid := f.product(t, "Tom Yum", "Soups", 25000)
	id := f.confirmed(t, 9, pid, 2).Order.ID

	const callers = 2
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, callers)
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Checkout(ctx, id, order.CheckoutRequest{})
		}()
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, order.ErrInvalidState)
	}
	assert.Equal(t, 1, succeeded)

	var checkouts int
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT COUNT(*) FROM order_logs WHERE order_id = $1 AND action = 'CHECKOUT'`, id,
	).Scan(&checkouts))
	assert.Equal(t, 1, checkouts)
}

func TestActiveTableConflict(t *testing.T) {
	f := newPGFixture(t, LockConfig{})
	ctx := context.Background()
	pid := f.product(t, "Rice", "Sides", 2000)
	req := order.CreateRequest{TableNumber: 3, Items: []order.LineInput{{ProductID: pid, Quantity: 1}}}

	first, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, req)
	require.ErrorIs(t, err, order.ErrConflict)

	_, err = f.svc.Cancel(ctx, first.Order.ID)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, req)
	require.NoError(t, err)
}

func TestLockContention(t *testing.T) {
	f := newPGFixture(t, LockConfig{Timeout: 200 * time.Millisecond, AcquireAttempts: 1})
	ctx := context.Background()
	pid := f.product(t, "Rice", "Sides", 2000)
	id := f.confirmed(t, 1, pid, 1).Order.ID

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.locker.WithOrderLock(ctx, id, func(context.Context, order.Tx, order.Snapshot) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := f.locker.TryOrderLock(ctx, id, func(context.Context, order.Tx, order.Snapshot) error {
		t.Fatal("callback must not run while the order is locked")
		return nil
	})
	require.ErrorIs(t, err, order.ErrLockUnavailable)

	_, err = f.svc.Cancel(ctx, id)
	require.ErrorIs(t, err, order.ErrTimeout)
	assert.True(t, order.Retryable(err))

	close(release)
	require.NoError(t, <-done)

	_, err = f.svc.Cancel(ctx, id)
	require.NoError(t, err)
}

func TestRollbackOnError(t *testing.T) {
	f := newPGFixture(t, LockConfig{})
	ctx := context.Background()
	pid := f.product(t, "Rice", "Sides", 2000)
	agg := f.confirmed(t, 1, pid, 1)

	boom := fmt.Errorf("boom")
	err := f.locker.WithOrderLock(ctx, agg.Order.ID, func(ctx context.Context, tx order.Tx, snap order.Snapshot) error {
		o := snap.Order
		o.Status = order.StatusCancelled
		require.NoError(t, tx.UpdateOrder(ctx, o))
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := f.orders.Get(ctx, agg.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, stored.Order.Status)
}

func TestCancelMany(t *testing.T) {
	f := newPGFixture(t, LockConfig{})
	ctx := context.Background()
	pid := f.product(t, "Rice", "Sides", 2000)
	a := f.confirmed(t, 1, pid, 1)
	b := f.confirmed(t, 2, pid, 1)

	_, err := f.svc.CancelMany(ctx, []int64{b.Order.ID, 9999})
	require.ErrorIs(t, err, order.ErrNotFound)

	aggs, err := f.svc.CancelMany(ctx, []int64{b.Order.ID, a.Order.ID})
	require.NoError(t, err)
	require.Len(t, aggs, 2)

	page, err := f.orders.List(ctx, order.ListFilter{Status: order.StatusCancelled, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestReports(t *testing.T) {
	f := newPGFixture(t, LockConfig{})
	ctx := context.Background()
	curry := f.product(t, "Green Curry", "Mains", 1000)
	tea := f.product(t, "Tea", "Drinks", 300)

	agg, err := f.svc.Create(ctx, order.CreateRequest{TableNumber: 1, Items: []order.LineInput{
		{ProductID: curry, Quantity: 2},
		{ProductID: tea, Quantity: 3},
	}})
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, agg.Order.ID)
	require.NoError(t, err)
	_, err = f.svc.VoidItem(ctx, agg.Order.ID, agg.Items[1].ID, "spilled")
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, agg.Order.ID, order.CheckoutRequest{
		DiscountType:  money.DiscountFixed,
		DiscountValue: ptr(int64(500)),
	})
	require.NoError(t, err)

	rng := report.Range{From: time.Now().Add(-time.Hour), To: time.Now().Add(time.Hour)}

	sum, err := f.reports.Summary(ctx, rng)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.PaidOrders)
	assert.Equal(t, 2, sum.ItemsSold)
	assert.Equal(t, money.Amount(2000), sum.GrossSales)
	assert.Equal(t, money.Amount(500), sum.Discounts)
	assert.Equal(t, money.Amount(1500), sum.NetSales)
	assert.Equal(t, money.Amount(1500), sum.AverageTicket)

	cats, err := f.reports.SalesByCategory(ctx, rng)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Mains", cats[0].Category)

	voids, err := f.reports.VoidAnalysis(ctx, rng)
	require.NoError(t, err)
	assert.Equal(t, 1, voids.Items)
	assert.Equal(t, money.Amount(900), voids.Amount)
	require.Len(t, voids.ByReason, 1)
	assert.Equal(t, "spilled", voids.ByReason[0].Reason)

	days, err := f.reports.SalesByDate(ctx, rng, time.UTC)
	require.NoError(t, err)
	require.NotEmpty(t, days)

	tables, err := f.reports.SalesByTable(ctx, rng)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, money.Amount(1500), tables[0].GrandTotal)
}

func ptr[T any](v T) *T { return &v }
