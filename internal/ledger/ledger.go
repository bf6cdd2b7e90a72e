// Package ledger records which users have redeemed a gift card.
//
// A ledger is a set of Telegram user ids that only ever grows. Every driver keeps an
// in-memory mirror guarded by a RWMutex so lookups never touch disk, and every driver
// persists a mutation before MarkRedeemed returns. A failed write leaves the mirror
// exactly as it was, so IsRedeemed never reports a redemption that is not durable.
package ledger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Ledger is the durable set of users who have received a card.
type Ledger interface {
	// IsRedeemed reports whether userID has already received a card.
	IsRedeemed(userID int64) bool
	// MarkRedeemed records userID and persists the change before returning.
	// Marking an id that is already present is a no-op.
	MarkRedeemed(userID int64) error
	// Count returns the number of users who have received a card.
	Count() int
	Close() error
}

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Open constructs the ledger for driver at path. For the json and sqlite drivers path is a
// file; for badger it is a directory.
func Open(driver, path string, logger *slog.Logger) (Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger: path is required")
	}

	var (
		l   Ledger
		err error
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverJSON:
		l, err = OpenFile(path)
	case DriverSQLite:
		l, err = OpenSQLite(path)
	case DriverBadger:
		l, err = OpenBadger(path)
	default:
		return nil, fmt.Errorf("ledger: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("ledger opened", "driver", driver, "path", path, "redeemed", l.Count())
	return l, nil
}
