package ledger

import (
	"errors"
	"fmt"
)

// ErrLocked is returned when another process already holds the ledger.
var ErrLocked = errors.New("ledger: store is locked by another process")

// LoadError means the backing store exists but could not be read or decoded.
// It is fatal at startup.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("ledger: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// WriteError means a redemption could not be persisted. The ledger is unchanged.
type WriteError struct {
	UserID int64
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger: persist redemption for user %d: %v", e.UserID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
