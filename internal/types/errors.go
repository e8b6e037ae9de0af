package types

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrMalformedDocument marks an attachment that failed validation or could
	// not be parsed by any extraction strategy.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrUnknownEntity marks a watched CIK with no manager row in the store.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrTransientNetwork marks feed or notification failures worth retrying
	// on the next cycle: timeouts, resets, 429 and 5xx responses.
	ErrTransientNetwork = errors.New("transient network error")
)

// StoreError wraps a failed store operation. Fatal is set when the
// connection itself is gone and the process should terminate.
type StoreError struct {
	Op    string
	Err   error
	Fatal bool
}

func (e *StoreError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("store %s (fatal): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError classifies err and wraps it. A nil err returns nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err, Fatal: isConnectionLoss(err)}
}

// IsFatal reports whether err carries an unrecoverable store failure.
func IsFatal(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Fatal
}

func isConnectionLoss(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}

// PartialWriteError reports a batch write that failed after some chunks
// had already been committed.
type PartialWriteError struct {
	Written int
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("holdings write failed after %d committed rows: %v", e.Written, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
