package order

import (
	"slices"

	"github.com/go-faster/errors"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusConfirmed Status = "CONFIRMED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// transitions is the directed acyclic status graph. Terminal states map to
// nothing.
var transitions = map[Status][]Status{
	StatusOpen:      {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPaid, StatusCancelled},
	StatusPaid:      {},
	StatusCancelled: {},
}

// ParseStatus converts a transport value to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", errors.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further writes are allowed.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// CanTransition reports whether current -> target is an edge of the graph.
func CanTransition(current, target Status) bool {
	return slices.Contains(transitions[current], target)
}

// CanAddItems allows new batches while OPEN or CONFIRMED.
func CanAddItems(s Status) bool {
	return s == StatusOpen || s == StatusConfirmed
}

// CanModifyItems allows quantity edits only while OPEN.
func CanModifyItems(s Status) bool {
	return s == StatusOpen
}

// CanVoidItem allows voiding only after the order went to the kitchen.
func CanVoidItem(s Status) bool {
	return s == StatusConfirmed
}

// CanCheckout allows payment only for CONFIRMED orders.
func CanCheckout(s Status) bool {
	return s == StatusConfirmed
}

// CanCancel allows cancelling OPEN and CONFIRMED orders.
func CanCancel(s Status) bool {
	return s == StatusOpen || s == StatusConfirmed
}

// NextBatchSequence returns the batch number for the next add-items call.
func NextBatchSequence(items []Item) int {
	highest := 0
	for _, it := range items {
		highest = max(highest, it.BatchSequence)
	}
	return highest + 1
}
