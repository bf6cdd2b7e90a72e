package ledger

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "redeemed/"

// BadgerLedger stores one key per redeemed user in a Badger database directory.
type BadgerLedger struct {
	*idSet
	db *badger.DB
}

func OpenBadger(dir string) (*BadgerLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create badger directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Cannot acquire directory lock") {
			return nil, ErrLocked
		}
		return nil, &LoadError{Path: dir, Err: err}
	}

	ids, err := loadBadgerIDs(db)
	if err != nil {
		_ = db.Close()
		return nil, &LoadError{Path: dir, Err: err}
	}
	return &BadgerLedger{idSet: newIDSet(ids), db: db}, nil
}

func (l *BadgerLedger) MarkRedeemed(userID int64) error {
	return l.insert(userID, func() error {
		return l.db.Update(func(txn *badger.Txn) error {
			return txn.Set(badgerKey(userID), []byte(time.Now().UTC().Format(time.RFC3339)))
		})
	})
}

func (l *BadgerLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func badgerKey(userID int64) []byte {
	return []byte(badgerPrefix + strconv.FormatInt(userID, 10))
}

func loadBadgerIDs(db *badger.DB) ([]int64, error) {
	var ids []int64
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := strings.TrimPrefix(string(it.Item().Key()), badgerPrefix)
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return fmt.Errorf("decode key %q: %w", key, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}
