package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// Error kinds. Every error returned by Service wraps exactly one of them.
var (
	// ErrValidation marks malformed or out-of-policy input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing order, item or product.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks an operation not allowed in the order's status.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict marks a uniqueness violation, such as a second active order
	// on one table.
	ErrConflict = errors.New("conflict")
	// ErrTimeout marks a lock wait timeout or an aborted serializable
	// transaction. The caller may retry.
	ErrTimeout = errors.New("lock timeout")
	// ErrLockUnavailable is returned by TryOrderLock when another transaction
	// holds the order.
	ErrLockUnavailable = errors.New("order lock unavailable")
)

// Kind is the machine-stable error category exposed to callers.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindTimeout      Kind = "timeout"
	KindInternal     Kind = "internal"
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrLockUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}

// Retryable reports whether the caller may retry the operation as is.
func Retryable(err error) bool {
	return KindOf(err) == KindTimeout
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// OrderNotFoundError is returned when no order has the requested id.
type OrderNotFoundError struct {
	OrderID int64
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

// Unwrap lets errors.Is(err, ErrNotFound) match.
func (e *OrderNotFoundError) Unwrap() error { return ErrNotFound }

// ProductNotFoundError indicates a requested product is missing or inactive.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found or inactive", e.ProductID)
}

// Unwrap lets errors.Is(err, ErrNotFound) match.
func (e *ProductNotFoundError) Unwrap() error { return ErrNotFound }

// ItemNotFoundError indicates the item does not belong to the order.
type ItemNotFoundError struct {
	OrderID int64
	ItemID  int64
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %d not found in order %d", e.ItemID, e.OrderID)
}

// Unwrap lets errors.Is(err, ErrNotFound) match.
func (e *ItemNotFoundError) Unwrap() error { return ErrNotFound }
