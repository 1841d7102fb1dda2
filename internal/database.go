package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Key-value tables that may hold session records
const (
	TableCursorDiskKV = "cursorDiskKV"
	TableItemTable    = "ItemTable"
)

// RetryPolicy controls how opening a busy store is retried
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy returns 3 attempts with min(100ms*2^(n-1), 1s) between them
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
	}
}

// Delay returns the wait after the given failed attempt (1-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := retry.NewExponential(p.BaseDelay)
	b = retry.WithCappedDuration(p.MaxDelay, b)
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// OpenDatabase opens a SQLite database in read-only mode. Busy or locked
// stores are retried per policy.
func OpenDatabase(ctx context.Context, path string, policy RetryPolicy) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &DBConnectionError{Path: path, Err: err}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, &DBConnectionError{Path: path, Err: fmt.Errorf("failed to open database: %w", err)}
	}

	err = withRetry(ctx, path, policy, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		// Ping alone does not touch the file; reading the schema does
		var n int
		return db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// withRetry runs fn until it succeeds, fails with a non-busy error, or the
// policy is exhausted.
func withRetry(ctx context.Context, path string, policy RetryPolicy, fn func(context.Context) error) error {
	attempts := 0
	err := retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err != nil && isBusy(err) {
			if attempts < policy.Attempts {
				LogDebug("Store %s busy (attempt %d), retrying in %v: %v", path, attempts, policy.Delay(attempts), err)
			}
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if isBusy(err) {
		return &DBLockedError{Path: path, Attempts: attempts, Err: err}
	}
	return &DBConnectionError{Path: path, Err: err}
}

type codedError interface {
	Code() int
}

// isBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including
// extended result codes.
func isBusy(err error) bool {
	var coded codedError
	if errors.As(err, &coded) {
		switch coded.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// DetectKVTable returns the key-value table holding session records.
// cursorDiskKV wins unless only ItemTable carries composerData keys.
func DetectKVTable(ctx context.Context, db *sql.DB) (string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name IN (?, ?)",
		TableCursorDiskKV, TableItemTable)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", fmt.Errorf("scan failed: %w", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows iteration error: %w", err)
	}

	switch {
	case found[TableCursorDiskKV] && found[TableItemTable]:
		has, err := hasComposerKeys(ctx, db, TableCursorDiskKV)
		if err != nil {
			return "", err
		}
		if has {
			return TableCursorDiskKV, nil
		}
		if has, err = hasComposerKeys(ctx, db, TableItemTable); err == nil && has {
			return TableItemTable, nil
		}
		return TableCursorDiskKV, nil
	case found[TableCursorDiskKV]:
		return TableCursorDiskKV, nil
	case found[TableItemTable]:
		return TableItemTable, nil
	default:
		return "", errors.New("no key-value table found")
	}
}

func hasComposerKeys(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		"SELECT 1 FROM "+table+" WHERE key LIKE ? LIMIT 1", ComposerKeyPrefix+"%").Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query failed: %w", err)
	}
	return true, nil
}

// QueryKeys returns keys matching a LIKE pattern, newest-first by key string.
// limit <= 0 means no limit.
func QueryKeys(ctx context.Context, db *sql.DB, table, pattern string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	query := "SELECT key FROM " + table + " WHERE key LIKE ? AND value IS NOT NULL ORDER BY key DESC LIMIT ?"
	rows, err := db.QueryContext(ctx, query, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return keys, nil
}

// QueryValue returns the value stored under key, or nil on a miss
func QueryValue(ctx context.Context, db *sql.DB, table, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, "SELECT value FROM "+table+" WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return value, nil
}
