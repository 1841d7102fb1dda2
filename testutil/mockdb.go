package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// CreateInMemoryDB creates an in-memory SQLite database with a cursorDiskKV table
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	// Every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS cursorDiskKV (
		key TEXT PRIMARY KEY,
		value BLOB
	)`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		t.Fatalf("Failed to create cursorDiskKV table: %v", err)
	}

	return db
}

// CreateTestDB creates an in-memory database with two sessions:
// composer1 (two bubbles) and composer2 (one bubble, one dangling header)
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := CreateInMemoryDB(t)

	records := []struct {
		key   string
		value string
	}{
		{
			key:   "composerData:composer1",
			value: `{"composerId":"composer1","name":"Test Conversation","createdAt":1000,"lastUpdatedAt":2000,"fullConversationHeadersOnly":[{"bubbleId":"bubble1","type":1},{"bubbleId":"bubble2","type":2}]}`,
		},
		{
			key:   "composerData:composer2",
			value: `{"composerId":"composer2","name":"Another Conversation","createdAt":3000,"lastUpdatedAt":4000,"fullConversationHeadersOnly":[{"bubbleId":"bubble3","type":1},{"bubbleId":"missing","type":2}]}`,
		},
		{
			key:   "bubbleId:composer1:bubble1",
			value: `{"bubbleId":"bubble1","text":"Hello","timestamp":1000,"type":1}`,
		},
		{
			key:   "bubbleId:composer1:bubble2",
			value: `{"bubbleId":"bubble2","text":"Hi there","timestamp":2000,"type":2}`,
		},
		{
			key:   "bubbleId:composer2:bubble3",
			value: `{"bubbleId":"bubble3","text":"How are you?","timestamp":3000,"type":1}`,
		},
	}

	stmt, err := db.Prepare("INSERT INTO cursorDiskKV (key, value) VALUES (?, ?)")
	if err != nil {
		db.Close()
		t.Fatalf("Failed to prepare insert statement: %v", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.key, r.value); err != nil {
			db.Close()
			t.Fatalf("Failed to insert %s: %v", r.key, err)
		}
	}

	return db
}

// InsertRecord inserts a raw key/value pair into cursorDiskKV
func InsertRecord(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO cursorDiskKV (key, value) VALUES (?, ?)", key, value); err != nil {
		t.Fatalf("Failed to insert %s: %v", key, err)
	}
}
