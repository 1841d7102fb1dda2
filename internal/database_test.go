package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iksnae/cursor-history/testutil"
	sqlite3 "modernc.org/sqlite/lib"
)

type fakeCodedError struct {
	code int
}

func (e *fakeCodedError) Error() string { return fmt.Sprintf("sqlite error %d", e.code) }
func (e *fakeCodedError) Code() int     { return e.code }

func fastPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestOpenDatabase(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) string
		wantErr bool
	}{
		{
			name: "valid database",
			setup: func(t *testing.T) string {
				dbPath := filepath.Join(testutil.CreateTempDir(t), "test.db")
				testutil.CreateSQLiteFixture(t, dbPath)
				return dbPath
			},
			wantErr: false,
		},
		{
			name: "non-existent database",
			setup: func(t *testing.T) string {
				return filepath.Join(testutil.CreateTempDir(t), "nonexistent.db")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := tt.setup(t)
			db, err := OpenDatabase(context.Background(), dbPath, fastPolicy())
			if (err != nil) != tt.wantErr {
				t.Errorf("OpenDatabase() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tt.wantErr {
				var connErr *DBConnectionError
				if !errors.As(err, &connErr) {
					t.Errorf("expected DBConnectionError, got %T", err)
				}
				return
			}
			defer db.Close()
			if err := db.Ping(); err != nil {
				t.Errorf("Database ping failed: %v", err)
			}
		})
	}
}

func TestOpenDatabase_ReadOnly(t *testing.T) {
	dbPath := filepath.Join(testutil.CreateTempDir(t), "state.vscdb")
	testutil.CreateSQLiteFixture(t, dbPath)

	db, err := OpenDatabase(context.Background(), dbPath, fastPolicy())
	if err != nil {
		t.Fatalf("OpenDatabase() error = %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("INSERT INTO cursorDiskKV (key, value) VALUES ('x', 'y')"); err == nil {
		t.Error("expected write to a read-only store to fail")
	}
}

func TestOpenDatabase_NotADatabase(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	dbPath := filepath.Join(dir, "garbage.db")
	if err := os.WriteFile(dbPath, []byte("this is not a sqlite file, just some text padding it out"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := OpenDatabase(context.Background(), dbPath, fastPolicy())
	var connErr *DBConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("expected DBConnectionError, got %v", err)
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("busy exhausts attempts", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), "store.db", fastPolicy(), func(ctx context.Context) error {
			calls++
			return &fakeCodedError{code: sqlite3.SQLITE_BUSY}
		})

		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
		var locked *DBLockedError
		if !errors.As(err, &locked) {
			t.Fatalf("expected DBLockedError, got %v", err)
		}
		if locked.Attempts != 3 {
			t.Errorf("Attempts = %d, want 3", locked.Attempts)
		}
		if !errors.Is(err, ErrDBLocked) {
			t.Error("expected errors.Is(err, ErrDBLocked)")
		}
	})

	t.Run("extended locked code is retried", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), "store.db", fastPolicy(), func(ctx context.Context) error {
			calls++
			if calls < 2 {
				// SQLITE_LOCKED_SHAREDCACHE
				return &fakeCodedError{code: sqlite3.SQLITE_LOCKED | (1 << 8)}
			}
			return nil
		})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), "store.db", fastPolicy(), func(ctx context.Context) error {
			calls++
			return &fakeCodedError{code: sqlite3.SQLITE_CORRUPT}
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
		var connErr *DBConnectionError
		if !errors.As(err, &connErr) {
			t.Errorf("expected DBConnectionError, got %v", err)
		}
	})

	t.Run("busy attempts log the next delay", func(t *testing.T) {
		originalLevel := logLevel
		originalLogger := logger
		defer func() {
			SetLogLevel(originalLevel)
			logger = originalLogger
		}()
		var logs bytes.Buffer
		SetLogOutput(&logs, false)
		SetLogLevel(LogLevelDebug)

		_ = withRetry(context.Background(), "store.db", fastPolicy(), func(ctx context.Context) error {
			return &fakeCodedError{code: sqlite3.SQLITE_BUSY}
		})

		out := logs.String()
		if !strings.Contains(out, "attempt 1), retrying in 1ms") {
			t.Errorf("missing first retry delay in %q", out)
		}
		if !strings.Contains(out, "attempt 2), retrying in 2ms") {
			t.Errorf("missing second retry delay in %q", out)
		}
		if strings.Contains(out, "attempt 3)") {
			t.Errorf("the final attempt should not announce a retry: %q", out)
		}
	})

	t.Run("message fallback", func(t *testing.T) {
		if !isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
			t.Error("expected lock message to be busy")
		}
		if isBusy(errors.New("no such table")) {
			t.Error("unexpected busy")
		}
	})
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicy_BackoffMatchesDelay(t *testing.T) {
	p := RetryPolicy{Attempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	b := p.backoff()
	for attempt := 1; attempt <= 4; attempt++ {
		d, stop := b.Next()
		if stop {
			t.Fatalf("backoff stopped after %d retries", attempt-1)
		}
		if d != p.Delay(attempt) {
			t.Errorf("retry %d: backoff %v, Delay %v", attempt, d, p.Delay(attempt))
		}
	}
	if _, stop := b.Next(); !stop {
		t.Error("expected backoff to stop after Attempts-1 retries")
	}
}

func TestDetectKVTable(t *testing.T) {
	ctx := context.Background()

	t.Run("cursorDiskKV", func(t *testing.T) {
		db := testutil.CreateTestDB(t)
		defer db.Close()
		table, err := DetectKVTable(ctx, db)
		if err != nil || table != TableCursorDiskKV {
			t.Errorf("DetectKVTable() = %q, %v", table, err)
		}
	})

	t.Run("ItemTable only", func(t *testing.T) {
		dbPath := filepath.Join(testutil.CreateTempDir(t), "state.vscdb")
		f := testutil.NewStoreFixture(t, dbPath, TableItemTable)
		f.Put("composerData:a", `{}`)
		f.Close()

		db, err := OpenDatabase(ctx, dbPath, fastPolicy())
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		table, err := DetectKVTable(ctx, db)
		if err != nil || table != TableItemTable {
			t.Errorf("DetectKVTable() = %q, %v", table, err)
		}
	})

	t.Run("both tables, sessions in ItemTable", func(t *testing.T) {
		dbPath := filepath.Join(testutil.CreateTempDir(t), "state.vscdb")
		empty := testutil.NewStoreFixture(t, dbPath, TableCursorDiskKV)
		empty.Put("other:key", `{}`)
		empty.Close()
		f := testutil.NewStoreFixture(t, dbPath, TableItemTable)
		f.Put("composerData:a", `{}`)
		f.Close()

		db, err := OpenDatabase(ctx, dbPath, fastPolicy())
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		table, err := DetectKVTable(ctx, db)
		if err != nil || table != TableItemTable {
			t.Errorf("DetectKVTable() = %q, %v", table, err)
		}
	})

	t.Run("no table", func(t *testing.T) {
		db := testutil.CreateInMemoryDB(t)
		defer db.Close()
		if _, err := db.Exec("DROP TABLE cursorDiskKV"); err != nil {
			t.Fatal(err)
		}
		if _, err := DetectKVTable(ctx, db); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestQueryKeys(t *testing.T) {
	db := testutil.CreateTestDB(t)
	defer db.Close()
	testutil.InsertRecord(t, db, "composerData:empty", "")

	ctx := context.Background()
	keys, err := QueryKeys(ctx, db, TableCursorDiskKV, ComposerKeyPrefix+"%", 0)
	if err != nil {
		t.Fatalf("QueryKeys() error = %v", err)
	}
	want := []string{"composerData:empty", "composerData:composer2", "composerData:composer1"}
	if len(keys) != len(want) {
		t.Fatalf("QueryKeys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	limited, err := QueryKeys(ctx, db, TableCursorDiskKV, ComposerKeyPrefix+"%", 1)
	if err != nil || len(limited) != 1 || limited[0] != want[0] {
		t.Errorf("QueryKeys(limit 1) = %v, %v", limited, err)
	}
}

func TestQueryKeys_NullValues(t *testing.T) {
	db := testutil.CreateInMemoryDB(t)
	defer db.Close()
	if _, err := db.Exec("INSERT INTO cursorDiskKV (key, value) VALUES (?, NULL)", "composerData:null"); err != nil {
		t.Fatal(err)
	}

	keys, err := QueryKeys(context.Background(), db, TableCursorDiskKV, ComposerKeyPrefix+"%", 0)
	if err != nil {
		t.Fatalf("QueryKeys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected NULL values to be skipped, got %v", keys)
	}
}

func TestQueryValue(t *testing.T) {
	db := testutil.CreateTestDB(t)
	defer db.Close()
	ctx := context.Background()

	value, err := QueryValue(ctx, db, TableCursorDiskKV, "bubbleId:composer1:bubble1")
	if err != nil || len(value) == 0 {
		t.Errorf("QueryValue() = %q, %v", value, err)
	}

	value, err = QueryValue(ctx, db, TableCursorDiskKV, "bubbleId:composer1:nope")
	if err != nil || value != nil {
		t.Errorf("QueryValue(miss) = %q, %v", value, err)
	}
}
