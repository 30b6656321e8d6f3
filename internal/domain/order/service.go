package order

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
	"github.com/phongit-kha/pos-lmwn/internal/domain/product"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// MaxTableNumber is the largest table number storage accepts.
const MaxTableNumber = math.MaxInt32

// LineInput is one requested (product, quantity) pair.
type LineInput struct {
	ProductID int64
	Quantity  int
}

// CreateRequest holds the input for opening an order.
type CreateRequest struct {
	TableNumber int
	Items       []LineInput
}

// CheckoutRequest holds the optional discount applied at payment. Both
// fields are empty for no discount.
type CheckoutRequest struct {
	DiscountType  money.DiscountType
	DiscountValue *int64
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the post-commit event sink.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithMeterProvider sets the provider used for operation counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		if mp != nil {
			s.meterProvider = mp
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service applies order mutations. Every mutation validates the order status
// on the locked snapshot, recomputes totals, persists the order and writes an
// audit row in one transaction.
type Service struct {
	locker    Locker
	orders    Repository
	products  product.Repository
	publisher Publisher
	audit     auditWriter

	meterProvider metric.MeterProvider
	operations    metric.Int64Counter
	now           func() time.Time
}

// NewService creates an order Service.
func NewService(locker Locker, orders Repository, products product.Repository, opts ...Option) (*Service, error) {
	s := &Service{
		locker:        locker,
		orders:        orders,
		products:      products,
		publisher:     nopPublisher{},
		meterProvider: noop.NewMeterProvider(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = auditWriter{now: s.now}

	meter := s.meterProvider.Meter("github.com/phongit-kha/pos-lmwn/internal/domain/order")
	ops, err := meter.Int64Counter("pos.order.operations",
		metric.WithDescription("Order mutations by action and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create operations counter")
	}
	s.operations = ops
	return s, nil
}

// Get returns the order with items and audit trail.
func (s *Service) Get(ctx context.Context, id int64) (*Aggregate, error) {
	if id <= 0 {
		return nil, validationf("order id must be positive")
	}
	return s.orders.Get(ctx, id)
}

// List returns a page of orders.
func (s *Service) List(ctx context.Context, f ListFilter) (Page, error) {
	if f.Status != "" && !f.Status.Valid() {
		return Page{}, validationf("unknown status %q", f.Status)
	}
	if f.TableNumber < 0 {
		return Page{}, validationf("table number must be positive")
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return Page{}, validationf("from must be before to")
	}
	f.Page, f.Limit = normalizePage(f.Page, f.Limit)
	return s.orders.List(ctx, f)
}

// Create opens an order for a table with a first batch of items.
func (s *Service) Create(ctx context.Context, req CreateRequest) (agg *Aggregate, err error) {
	defer func() { s.record(ctx, ActionCreate, err) }()

	if req.TableNumber <= 0 || req.TableNumber > MaxTableNumber {
		return nil, validationf("table number must be between 1 and %d", MaxTableNumber)
	}
	if err := validateLines(req.Items); err != nil {
		return nil, err
	}
	catalog, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	draft := Order{
		TableNumber: req.TableNumber,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.locker.CreateOrder(ctx, draft, func(ctx context.Context, tx Tx, snap Snapshot) error {
		o := snap.Order
		items, err := tx.InsertItems(ctx, newItems(o.ID, req.Items, catalog, 1, now))
		if err != nil {
			return errors.Wrap(err, "insert items")
		}
		t, err := applyTotals(&o, items)
		if err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		if err := s.audit.write(ctx, tx, o.ID, ActionCreate, createDetails(o.TableNumber, len(items), t.Subtotal)); err != nil {
			return err
		}
		agg = &Aggregate{Order: o, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order created",
		zap.Int64("order_id", agg.Order.ID),
		zap.Int("table", agg.Order.TableNumber),
		zap.Stringer("subtotal", agg.Order.Subtotal),
	)
	s.publish(ctx, agg, ActionCreate, 1, agg.Items)
	return agg, nil
}

// AddItems appends a new batch to an OPEN or CONFIRMED order.
func (s *Service) AddItems(ctx context.Context, orderID int64, lines []LineInput) (agg *Aggregate, err error) {
	defer func() { s.record(ctx, ActionAddItems, err) }()

	if err := validateLines(lines); err != nil {
		return nil, err
	}
	catalog, err := s.resolveProducts(ctx, lines)
	if err != nil {
		return nil, err
	}

	var (
		batch int
		added []Item
	)
	err = s.locker.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx, snap Snapshot) error {
		o := snap.Order
		if !CanAddItems(o.Status) {
			return invalidStatef("cannot add items to %s order", o.Status)
		}
		now := s.now()
		batch = NextBatchSequence(snap.Items)
		inserted, err := tx.InsertItems(ctx, newItems(o.ID, lines, catalog, batch, now))
		if err != nil {
			return errors.Wrap(err, "insert items")
		}
		added = inserted
		items := append(snap.Items, inserted...)
		t, err := applyTotals(&o, items)
		if err != nil {
			return err
		}
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		if err := s.audit.write(ctx, tx, o.ID, ActionAddItems, addItemsDetails(batch, len(inserted), t.Subtotal)); err != nil {
			return err
		}
		agg = &Aggregate{Order: o, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Items added",
		zap.Int64("order_id", orderID),
		zap.Int("batch", batch),
		zap.Int("count", len(added)),
	)
	s.publish(ctx, agg, ActionAddItems, batch, added)
	return agg, nil
}

// Confirm sends an OPEN order to the kitchen.
func (s *Service) Confirm(ctx context.Context, orderID int64) (agg *Aggregate, err error) {
	defer func() { s.record(ctx, ActionConfirm, err) }()

	err = s.locker.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx, snap Snapshot) error {
		o := snap.Order
		if !CanTransition(o.Status, StatusConfirmed) {
			return invalidStatef("cannot confirm %s order", o.Status)
		}
		active := snap.ActiveCount()
		if active == 0 {
			return validationf("order has no active items")
		}
		o.Status = StatusConfirmed
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		if err := s.audit.write(ctx, tx, o.ID, ActionConfirm, confirmDetails(active, o.Subtotal)); err != nil {
			return err
		}
		agg = &Aggregate{Order: o, Items: snap.Items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order confirmed", zap.Int64("order_id", orderID))
	s.publish(ctx, agg, ActionConfirm, 0, agg.Items)
	return agg, nil
}

// VoidItem marks an item of a CONFIRMED order as voided.
func (s *Service) VoidItem(ctx context.Context, orderID, itemID int64, reason string) (agg *Aggregate, err error) {
	defer func() { s.record(ctx, ActionVoidItem, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationf("void reason is required")
	}

	var voided Item
	err = s.locker.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx, snap Snapshot) error {
		o := snap.Order
		if !CanVoidItem(o.Status) {
			return invalidStatef("cannot void items of %s order", o.Status)
		}
		idx := slices.IndexFunc(snap.Items, func(it Item) bool { return it.ID == itemID })
		if idx < 0 {
			return &ItemNotFoundError{OrderID: orderID, ItemID: itemID}
		}
		if !snap.Items[idx].Active() {
			return invalidStatef("item %d is already voided", itemID)
		}

		now := s.now()
		items := snap.Items
		items[idx].Status = ItemVoided
		items[idx].VoidReason = reason
		items[idx].UpdatedAt = now
		voided = items[idx]
		if err := tx.UpdateItem(ctx, voided); err != nil {
			return errors.Wrap(err, "update item")
		}
		t, err := applyTotals(&o, items)
		if err != nil {
			return err
		}
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		if err := s.audit.write(ctx, tx, o.ID, ActionVoidItem, voidDetails(voided, t.Subtotal)); err != nil {
			return err
		}
		agg = &Aggregate{Order: o, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Item voided",
		zap.Int64("order_id", orderID),
		zap.Int64("item_id", itemID),
		zap.String("reason", reason),
	)
	s.publish(ctx, agg, ActionVoidItem, voided.BatchSequence, []Item{voided})
	return agg, nil
}

// UpdateItemQuantity changes the quantity of an item while the order is OPEN.
func (s *Service) UpdateItemQuantity(ctx context.Context, orderID, itemID int64, quantity int) (agg *Aggregate, err error) {
	defer func() { s.record(ctx, ActionUpdateQuantity, err) }()

	if quantity < 1 || quantity > money.MaxQuantity {
		return nil, validationf("quantity must be between 1 and %d", money.MaxQuantity)
	}

	err = s.locker.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx, snap Snapshot) error {
		o := snap.Order
		if !CanModifyItems(o.Status) {
			return invalidStatef("cannot modify items of %s order", o.Status)
		}
		idx := slices.IndexFunc(snap.Items, func(it Item) bool { return it.ID == itemID })
		if idx < 0 {
			return &ItemNotFoundError{OrderID: orderID, ItemID: itemID}
		}
		if !snap.Items[idx].Active() {
			return invalidStatef("item %d is voided", itemID)
		}

		now := s.now()
		items := snap.Items
		previous := items[idx].Quantity
		items[idx].Quantity = quantity
		items[idx].UpdatedAt = now
		if err := tx.UpdateItem(ctx, items[idx]); err != nil {
			return errors.Wrap(err, "update item")
		}
		t, err := applyTotals(&o, items)
		if err != nil {
			return err
		}
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		if err := s.audit.write(ctx, tx, o.ID, ActionUpdateQuantity, quantityDetails(items[idx], previous, t.Subtotal)); err != nil {
			return err
		}
		agg = &Aggregate{Order: o, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Item quantity updated",
		zap.Int64("order_id", orderID),
		zap.Int64("item_id", itemID),
		zap.Int("quantity", quantity),
	)
	return agg, nil
}

// Checkout applies the discount and marks a CONFIRMED order as PAID.
func (s *Service) Checkout(ctx context.Context, orderID int64, req CheckoutRequest) (agg *Aggregate, err error) {
	defer func() { s.record(ctx, ActionCheckout, err) }()

	discount, err := checkoutDiscount(req)
	if err != nil {
		return nil, err
	}

	err = s.locker.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx, snap Snapshot) error {
		o := snap.Order
		if !CanCheckout(o.Status) {
			return invalidStatef("cannot check out %s order", o.Status)
		}
		if snap.ActiveCount() == 0 {
			return validationf("order has no active items")
		}
		subtotal, err := money.Subtotal(Lines(snap.Items))
		if err != nil {
			return validationf("order total: %v", err)
		}
		if discount != nil && discount.Type == money.DiscountFixed && money.Amount(discount.Value) > subtotal {
			return validationf("fixed discount %d exceeds subtotal %s", discount.Value, subtotal)
		}

		o.Discount = discount
		t, err := applyTotals(&o, snap.Items)
		if err != nil {
			return err
		}
		o.Status = StatusPaid
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		if err := s.audit.write(ctx, tx, o.ID, ActionCheckout, checkoutDetails(t, discount)); err != nil {
			return err
		}
		agg = &Aggregate{Order: o, Items: snap.Items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order paid",
		zap.Int64("order_id", orderID),
		zap.Stringer("subtotal", agg.Order.Subtotal),
		zap.Stringer("grand_total", agg.Order.GrandTotal),
	)
	s.publish(ctx, agg, ActionCheckout, 0, nil)
	return agg, nil
}

// Cancel moves an OPEN or CONFIRMED order to CANCELLED. Items and totals
// are left as they were.
func (s *Service) Cancel(ctx context.Context, orderID int64) (agg *Aggregate, err error) {
	defer func() { s.record(ctx, ActionCancel, err) }()

	err = s.locker.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx, snap Snapshot) error {
		o, err := s.cancel(ctx, tx, snap, "")
		if err != nil {
			return err
		}
		agg = &Aggregate{Order: o, Items: snap.Items}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order cancelled", zap.Int64("order_id", orderID))
	s.publish(ctx, agg, ActionCancel, 0, nil)
	return agg, nil
}

// CancelMany cancels several orders atomically: if any of them cannot be
// cancelled, none is.
func (s *Service) CancelMany(ctx context.Context, orderIDs []int64) (aggs []Aggregate, err error) {
	defer func() { s.record(ctx, ActionCancel, err) }()

	if len(orderIDs) == 0 {
		return nil, validationf("at least one order id is required")
	}
	ids := slices.Clone(orderIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if ids[0] <= 0 {
		return nil, validationf("order id must be positive")
	}

	err = s.locker.WithOrdersLock(ctx, ids, func(ctx context.Context, tx Tx, snaps []Snapshot) error {
		aggs = make([]Aggregate, 0, len(snaps))
		for _, snap := range snaps {
			o, err := s.cancel(ctx, tx, snap, "")
			if err != nil {
				return errors.Wrapf(err, "order %d", snap.Order.ID)
			}
			aggs = append(aggs, Aggregate{Order: o, Items: snap.Items})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Orders cancelled", zap.Int64s("order_ids", ids))
	for i := range aggs {
		s.publish(ctx, &aggs[i], ActionCancel, 0, nil)
	}
	return aggs, nil
}

// CancelIfIdle cancels an OPEN order that has not changed since cutoff. It
// never waits for the lock: a busy order is reported through
// ErrLockUnavailable. The boolean is false when the order no longer
// qualifies.
func (s *Service) CancelIfIdle(ctx context.Context, orderID int64, cutoff time.Time) (cancelled bool, err error) {
	defer func() {
		if cancelled || err != nil {
			s.record(ctx, ActionCancel, err)
		}
	}()

	var agg *Aggregate
	err = s.locker.TryOrderLock(ctx, orderID, func(ctx context.Context, tx Tx, snap Snapshot) error {
		if snap.Order.Status != StatusOpen || snap.Order.UpdatedAt.After(cutoff) {
			return nil
		}
		o, err := s.cancel(ctx, tx, snap, "idle")
		if err != nil {
			return err
		}
		agg = &Aggregate{Order: o, Items: snap.Items}
		return nil
	})
	if err != nil {
		return false, err
	}
	if agg == nil {
		return false, nil
	}
	zctx.From(ctx).Info("Idle order cancelled", zap.Int64("order_id", orderID))
	s.publish(ctx, agg, ActionCancel, 0, nil)
	return true, nil
}

func (s *Service) cancel(ctx context.Context, tx Tx, snap Snapshot, reason string) (Order, error) {
	o := snap.Order
	switch {
	case o.Status == StatusPaid:
		return Order{}, invalidStatef("cannot cancel paid order")
	case !CanCancel(o.Status):
		return Order{}, invalidStatef("cannot cancel %s order", o.Status)
	}
	previous := o.Status
	o.Status = StatusCancelled
	o.UpdatedAt = s.now()
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return Order{}, errors.Wrap(err, "update order")
	}
	if err := s.audit.write(ctx, tx, o.ID, ActionCancel, cancelDetails(previous, o.GrandTotal, reason)); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *Service) resolveProducts(ctx context.Context, lines []LineInput) (map[int64]product.Product, error) {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	catalog := make(map[int64]product.Product, len(fetched))
	for _, p := range fetched {
		if p.IsActive {
			catalog[p.ID] = p
		}
	}
	for _, l := range lines {
		if _, ok := catalog[l.ProductID]; !ok {
			return nil, &ProductNotFoundError{ProductID: l.ProductID}
		}
	}
	return catalog, nil
}

func (s *Service) publish(ctx context.Context, agg *Aggregate, action Action, batch int, items []Item) {
	e := Event{
		OrderID:       agg.Order.ID,
		TableNumber:   agg.Order.TableNumber,
		Action:        action,
		Status:        agg.Order.Status,
		BatchSequence: batch,
		Items:         eventItems(items),
		OccurredAt:    s.now(),
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.Int64("order_id", e.OrderID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

func (s *Service) record(ctx context.Context, action Action, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	s.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(action)),
		attribute.String("outcome", outcome),
	))
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return validationf("at least one item is required")
	}
	for _, l := range lines {
		if l.ProductID <= 0 {
			return validationf("product id must be positive")
		}
		if l.Quantity < 1 || l.Quantity > money.MaxQuantity {
			return validationf("quantity must be between 1 and %d for product %d", money.MaxQuantity, l.ProductID)
		}
	}
	return nil
}

// checkoutDiscount validates the discount independently of order state.
func checkoutDiscount(req CheckoutRequest) (*money.Discount, error) {
	switch {
	case req.DiscountType == "" && req.DiscountValue == nil:
		return nil, nil
	case req.DiscountType == "":
		return nil, validationf("discount type is required when a value is given")
	case req.DiscountValue == nil:
		return nil, validationf("discount value is required for %s discount", req.DiscountType)
	case !req.DiscountType.Valid():
		return nil, validationf("unsupported discount type %q", req.DiscountType)
	}
	v := *req.DiscountValue
	if req.DiscountType == money.DiscountPercent && (v < 0 || v > money.MaxCheckoutPercent) {
		return nil, validationf("percent discount must be between 0 and %d", money.MaxCheckoutPercent)
	}
	if v < 0 {
		return nil, validationf("discount value must not be negative")
	}
	return &money.Discount{Type: req.DiscountType, Value: v}, nil
}

func newItems(orderID int64, lines []LineInput, catalog map[int64]product.Product, batch int, now time.Time) []Item {
	items := make([]Item, len(lines))
	for i, l := range lines {
		p := catalog[l.ProductID]
		items[i] = Item{
			OrderID:       orderID,
			ProductID:     p.ID,
			ProductName:   p.Name,
			PricePerUnit:  p.Price,
			Quantity:      l.Quantity,
			BatchSequence: batch,
			Status:        ItemActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	return items
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = defaultPageLimit
	case limit > maxPageLimit:
		limit = maxPageLimit
	}
	return page, limit
}
