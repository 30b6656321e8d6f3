package postgres

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

// SQLSTATE codes the coordinator reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeUniqueViolation      = "23505"
)

const activeTableIndex = "orders_active_table_uidx"

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isSerializationFailure(err error) bool {
	code := sqlState(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected
}

// mapError translates driver errors into order error kinds. Errors that
// already carry a kind are returned as is.
func mapError(err error, nowait bool) error {
	if err == nil || order.KindOf(err) != order.KindInternal {
		return err
	}
	switch sqlState(err) {
	case codeLockNotAvailable:
		if nowait {
			return fmt.Errorf("%w: %w", order.ErrLockUnavailable, err)
		}
		return fmt.Errorf("%w: %w", order.ErrTimeout, err)
	case codeSerializationFailure, codeDeadlockDetected, codeQueryCanceled:
		return fmt.Errorf("%w: %w", order.ErrTimeout, err)
	case codeUniqueViolation:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == activeTableIndex {
			return fmt.Errorf("%w: table already has an active order", order.ErrConflict)
		}
		return fmt.Errorf("%w: %w", order.ErrConflict, err)
	}
	return err
}
