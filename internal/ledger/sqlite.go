package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteTable = "redeemed_users"

// SQLiteLedger stores redemptions in a SQLite table and serves reads from memory.
type SQLiteLedger struct {
	*idSet
	db *sql.DB
}

func OpenSQLite(dsn string) (*SQLiteLedger, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("ledger: sqlite dsn is required")
	}
	if err := ensureSQLiteDir(dsn); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := ensureSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, &LoadError{Path: dsn, Err: err}
	}
	ids, err := loadSQLiteIDs(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, &LoadError{Path: dsn, Err: err}
	}
	return &SQLiteLedger{idSet: newIDSet(ids), db: db}, nil
}

func (l *SQLiteLedger) MarkRedeemed(userID int64) error {
	return l.insert(userID, func() error {
		_, err := l.db.ExecContext(
			context.Background(),
			"INSERT INTO "+sqliteTable+" (user_id, redeemed_at) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING",
			userID,
			time.Now().UTC(),
		)
		return err
	})
}

func (l *SQLiteLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func ensureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + sqliteTable + ` (
		user_id INTEGER PRIMARY KEY,
		redeemed_at TIMESTAMP NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create sqlite table: %w", err)
	}
	return nil
}

func loadSQLiteIDs(ctx context.Context, db *sql.DB) ([]int64, error) {
	rows, err := db.QueryContext(ctx, "SELECT user_id FROM "+sqliteTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func ensureSQLiteDir(dsn string) error {
	if strings.HasPrefix(dsn, "file:") {
		dsn = strings.TrimPrefix(dsn, "file:")
		if idx := strings.IndexRune(dsn, '?'); idx >= 0 {
			dsn = dsn[:idx]
		}
	}
	if dsn == "" || dsn == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
