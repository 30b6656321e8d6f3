package order

import (
	"time"

	"github.com/phongit-kha/pos-lmwn/internal/domain/money"
)

// Order is a table's bill. Totals always equal money.Recalculate over the
// active items and the stored discount.
type Order struct {
	ID          int64
	TableNumber int
	Status      Status
	Subtotal    money.Amount
	Discount    *money.Discount
	GrandTotal  money.Amount
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemStatus is the lifecycle of a single order item.
type ItemStatus string

const (
	ItemActive ItemStatus = "ACTIVE"
	ItemVoided ItemStatus = "VOIDED"
)

// Item is an order line. ProductName and PricePerUnit are frozen copies taken
// when the item was added.
type Item struct {
	ID            int64
	OrderID       int64
	ProductID     int64
	ProductName   string
	PricePerUnit  money.Amount
	Quantity      int
	BatchSequence int
	Status        ItemStatus
	VoidReason    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the item still counts towards the subtotal.
func (i Item) Active() bool {
	return i.Status == ItemActive
}

// Total returns PricePerUnit × Quantity. Stored items already passed the
// overflow check in applyTotals, so an error here reports zero.
func (i Item) Total() money.Amount {
	total, err := money.ItemTotal(i.PricePerUnit, i.Quantity)
	if err != nil {
		return money.Zero
	}
	return total
}

// Action tags an audit log row.
type Action string

const (
	ActionCreate         Action = "CREATE"
	ActionAddItems       Action = "ADD_ITEMS"
	ActionConfirm        Action = "CONFIRM"
	ActionVoidItem       Action = "VOID_ITEM"
	ActionUpdateQuantity Action = "UPDATE_QUANTITY"
	ActionCheckout       Action = "CHECKOUT"
	ActionCancel         Action = "CANCEL"
)

// Details is the action-specific audit payload. Money values are stored as
// decimal strings.
type Details map[string]any

// LogEntry is an immutable audit row.
type LogEntry struct {
	ID        int64
	OrderID   int64
	Action    Action
	Details   Details
	CreatedAt time.Time
}

// Aggregate is an order with its items and, for reads, its audit trail.
type Aggregate struct {
	Order Order
	Items []Item
	Logs  []LogEntry
}

// Snapshot is the state of one order as of lock acquisition. Mutating it does
// not affect storage.
type Snapshot struct {
	Order Order
	Items []Item
}

// NewSnapshot deep-copies o and items.
func NewSnapshot(o Order, items []Item) Snapshot {
	if o.Discount != nil {
		d := *o.Discount
		o.Discount = &d
	}
	cp := make([]Item, len(items))
	copy(cp, items)
	return Snapshot{Order: o, Items: cp}
}

// Item returns the item with the given id.
func (s Snapshot) Item(id int64) (Item, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// ActiveCount returns the number of ACTIVE items.
func (s Snapshot) ActiveCount() int {
	n := 0
	for _, it := range s.Items {
		if it.Active() {
			n++
		}
	}
	return n
}

// Lines converts items to money lines.
func Lines(items []Item) []money.Line {
	lines := make([]money.Line, len(items))
	for i, it := range items {
		lines[i] = money.Line{
			UnitPrice: it.PricePerUnit,
			Quantity:  it.Quantity,
			Voided:    !it.Active(),
		}
	}
	return lines
}

// applyTotals recomputes o's totals from items, keeping o.Discount. Totals
// that overflow an Amount fail validation and leave o untouched.
func applyTotals(o *Order, items []Item) (money.Totals, error) {
	t, err := money.Recalculate(Lines(items), o.Discount)
	if err != nil {
		return money.Totals{}, validationf("order total: %v", err)
	}
	o.Subtotal = t.Subtotal
	o.GrandTotal = t.GrandTotal
	return t, nil
}
