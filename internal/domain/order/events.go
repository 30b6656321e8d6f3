package order

import (
	"context"
	"time"
)

// Event is emitted after a mutation commits. The kitchen display consumes
// ADD_ITEMS, CONFIRM, VOID_ITEM and CANCEL; the rest are informational.
type Event struct {
	OrderID       int64
	TableNumber   int
	Action        Action
	Status        Status
	BatchSequence int
	Items         []EventItem
	OccurredAt    time.Time
}

// EventItem is the kitchen view of an item.
type EventItem struct {
	ItemID      int64
	ProductID   int64
	ProductName string
	Quantity    int
	Status      ItemStatus
	VoidReason  string
}

// Publisher delivers committed events. Delivery is best effort: a failure is
// logged and never undoes the committed mutation.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

func eventItems(items []Item) []EventItem {
	out := make([]EventItem, len(items))
	for i, it := range items {
		out[i] = EventItem{
			ItemID:      it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Status:      it.Status,
			VoidReason:  it.VoidReason,
		}
	}
	return out
}
