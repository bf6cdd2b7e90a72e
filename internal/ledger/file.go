package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// fileState is the on-disk layout of the json driver.
type fileState struct {
	RedeemedUsers []int64 `json:"redeemed_users"`
}

// FileLedger keeps the whole set in memory and rewrites a JSON file on every mutation.
// The file is replaced atomically, so it is always either the old or the new set.
// This is meant for thousands of users, not millions.
type FileLedger struct {
	*idSet
	path    string
	lock    *fileLock
	replace func(path string, data []byte) error
}

// OpenFile loads the ledger at path, creating an empty one if the file does not exist.
// The file's directory is created if needed, and an advisory lock on path+".lock" is held
// until Close.
func OpenFile(path string) (*FileLedger, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create directory: %w", err)
		}
	}
	lock, err := acquireLock(path + ".lock")
	if err != nil {
		return nil, err
	}
	ids, err := readFileState(path)
	if err != nil {
		_ = lock.release()
		return nil, err
	}
	return &FileLedger{
		idSet:   newIDSet(ids),
		path:    path,
		lock:    lock,
		replace: writeFileAtomic,
	}, nil
}

func (l *FileLedger) MarkRedeemed(userID int64) error {
	return l.insert(userID, func() error {
		data, err := json.Marshal(fileState{RedeemedUsers: l.sortedLocked()})
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return l.replace(l.path, data)
	})
}

func (l *FileLedger) Close() error {
	if l == nil || l.lock == nil {
		return nil
	}
	err := l.lock.release()
	l.lock = nil
	return err
}

func readFileState(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return state.RedeemedUsers, nil
}

// writeFileAtomic writes data to a temp file next to path, syncs it, and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		_ = os.Remove(tmp.Name())
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
