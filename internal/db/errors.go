package db

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nekogravitycat/lesson-booking-backend/internal/pkg/apperror"
)

var (
	// ErrTxConflict means Postgres aborted the transaction to keep it serializable.
	ErrTxConflict = errors.New("transaction conflict")
	// ErrOverlap means an exclusion constraint rejected the write.
	ErrOverlap = errors.New("exclusion constraint violated")
	// ErrDuplicate means a unique constraint rejected the write.
	ErrDuplicate = errors.New("unique constraint violated")

	ErrStoreUnavailable = apperror.New(http.StatusServiceUnavailable, apperror.KindInfrastructure, "store unavailable")
)

// Classify maps driver errors onto the package sentinels. Errors that are not
// Postgres or connection failures are returned untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return fmt.Errorf("%w: %w", ErrTxConflict, err)
		case pgerrcode.ExclusionViolation:
			return fmt.Errorf("%w: %w", ErrOverlap, err)
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		case pgerrcode.AdminShutdown, pgerrcode.CannotConnectNow, pgerrcode.TooManyConnections:
			return apperror.Wrap(err, ErrStoreUnavailable)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || errors.Is(err, context.DeadlineExceeded) {
		return apperror.Wrap(err, ErrStoreUnavailable)
	}

	return err
}
