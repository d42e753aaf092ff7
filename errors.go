package asqlite

import (
	"context"
	"errors"
)

// Common errors surfaced by the facade
var (
	// ErrConnClosed indicates an operation on a closed connection,
	// or on a cursor whose parent connection has been closed
	ErrConnClosed = errors.New("asqlite: connection is closed")

	// ErrCursorClosed indicates an operation on a closed cursor
	ErrCursorClosed = errors.New("asqlite: cursor is closed")

	// ErrTxActive indicates an attempt to begin a transaction while
	// another one is still active on the same connection
	ErrTxActive = errors.New("asqlite: transaction already active")

	// ErrTxDone indicates a commit or rollback on a transaction that
	// has already been committed or rolled back
	ErrTxDone = errors.New("asqlite: transaction already finished")

	// ErrNotThreadSafe indicates that the underlying driver reported a
	// concurrency mode insufficient for use behind the dispatcher
	ErrNotThreadSafe = errors.New("asqlite: driver is not thread-safe")

	// ErrUnsupportedOperation indicates an operation that is intentionally
	// not supported, such as a direct commit on a connection
	ErrUnsupportedOperation = errors.New("asqlite: unsupported operation")

	// ErrNoColumnNames indicates named column access on a row produced
	// by the positional row factory
	ErrNoColumnNames = errors.New("asqlite: row carries no column names")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindClosed represents operations on closed connections or cursors
	KindClosed
	// KindTxNesting represents illegal transaction nesting
	KindTxNesting
	// KindTxDone represents transitions on a finished transaction
	KindTxDone
	// KindThreadSafety represents the connect-time thread-safety precondition
	KindThreadSafety
	// KindUnsupported represents intentionally unsupported operations
	KindUnsupported
	// KindCanceled represents context cancellation
	KindCanceled
	// KindDriver represents errors surfaced by the native driver
	KindDriver
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindClosed:
		return "Closed"
	case KindTxNesting:
		return "TxNesting"
	case KindTxDone:
		return "TxDone"
	case KindThreadSafety:
		return "ThreadSafety"
	case KindUnsupported:
		return "Unsupported"
	case KindCanceled:
		return "Canceled"
	case KindDriver:
		return "Driver"
	default:
		return "Unknown"
	}
}

// kindPriorities defines the deterministic order for error classification.
// Higher priority (lower index) kinds are checked first in KindOf.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil}, // context.Canceled / DeadlineExceeded (special case)
	{KindClosed, ErrConnClosed},
	{KindClosed, ErrCursorClosed},
	{KindTxNesting, ErrTxActive},
	{KindTxDone, ErrTxDone},
	{KindThreadSafety, ErrNotThreadSafe},
	{KindUnsupported, ErrUnsupportedOperation},
}

// KindOf returns the Kind of the given error by checking against known
// sentinel errors in a deterministic priority order. Any non-nil error that
// matches no sentinel is treated as surfaced by the native driver.
//
// Example:
//
//	switch asqlite.KindOf(err) {
//	case asqlite.KindClosed:
//	    return http.StatusConflict
//	case asqlite.KindDriver:
//	    return http.StatusBadRequest
//	default:
//	    return http.StatusInternalServerError
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for _, priority := range kindPriorities {
		if priority.kind == KindCanceled {
			if IsCanceled(err) {
				return KindCanceled
			}
			continue
		}
		if errors.Is(err, priority.err) {
			return priority.kind
		}
	}

	return KindDriver
}

// HasKind reports whether the given error has the specified kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsCanceled reports whether the error is a context cancellation or deadline.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
