// Package retry provides retry logic with exponential backoff for
// operations against a busy SQLite database.
//
// Basic usage:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), retry.IsBusy, func(ctx context.Context) error {
//	    return someWriteOperation(ctx)
//	})
//
// The classifier decides which errors are worth retrying; IsBusy matches
// the SQLITE_BUSY family. Everything else fails on the first attempt.
package retry
