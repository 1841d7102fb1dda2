package testutil

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Bubble describes one message record written by a StoreFixture
type Bubble struct {
	ID       string
	Type     int
	Text     string
	RichText string
	Result   string // toolFormerData.result, serialized JSON
	ToolName string
}

// StoreFixture is a writable state.vscdb used to feed the read-only reader
type StoreFixture struct {
	t     *testing.T
	db    *sql.DB
	table string
	Path  string
}

// NewStoreFixture creates a store at dbPath with a key-value table named
// table ("cursorDiskKV" or "ItemTable")
func NewStoreFixture(t *testing.T, dbPath, table string) *StoreFixture {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		t.Fatalf("Failed to create fixture directory: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)

	createTableSQL := `CREATE TABLE IF NOT EXISTS ` + table + ` (
		key TEXT UNIQUE ON CONFLICT REPLACE,
		value BLOB
	)`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		t.Fatalf("Failed to create table: %v", err)
	}

	f := &StoreFixture{t: t, db: db, table: table, Path: dbPath}
	t.Cleanup(func() { _ = f.db.Close() })
	return f
}

// Put writes a raw key/value pair
func (f *StoreFixture) Put(key, value string) {
	f.t.Helper()
	insertSQL := "INSERT INTO " + f.table + " (key, value) VALUES (?, ?)"
	if _, err := f.db.Exec(insertSQL, key, []byte(value)); err != nil {
		f.t.Fatalf("Failed to insert %s: %v", key, err)
	}
}

// AddSession writes a composer record plus one bubble record per message.
// extra fields are merged into the composer JSON.
func (f *StoreFixture) AddSession(id, name string, createdAt int64, bubbles []Bubble, extra map[string]interface{}) {
	f.t.Helper()

	headers := make([]map[string]interface{}, 0, len(bubbles))
	for _, b := range bubbles {
		headers = append(headers, map[string]interface{}{"bubbleId": b.ID, "type": b.Type})
	}

	composer := map[string]interface{}{
		"composerId":                  id,
		"fullConversationHeadersOnly": headers,
	}
	if name != "" {
		composer["name"] = name
	}
	if createdAt != 0 {
		composer["createdAt"] = createdAt
		composer["lastUpdatedAt"] = createdAt
	}
	for k, v := range extra {
		composer[k] = v
	}
	f.Put("composerData:"+id, JSONString(f.t, composer))

	for _, b := range bubbles {
		f.AddBubble(id, b)
	}
}

// AddBubble writes a single bubble record
func (f *StoreFixture) AddBubble(composerID string, b Bubble) {
	f.t.Helper()
	bubble := map[string]interface{}{
		"bubbleId": b.ID,
		"type":     b.Type,
		"text":     b.Text,
	}
	if b.RichText != "" {
		bubble["richText"] = b.RichText
	}
	if b.Result != "" || b.ToolName != "" {
		bubble["toolFormerData"] = map[string]interface{}{
			"tool":   15,
			"name":   b.ToolName,
			"result": b.Result,
		}
	}
	f.Put("bubbleId:"+composerID+":"+b.ID, JSONString(f.t, bubble))
}

// Close closes the writer connection
func (f *StoreFixture) Close() {
	_ = f.db.Close()
}

// CreateSQLiteFixture creates a global-layout store with one session
func CreateSQLiteFixture(t *testing.T, dbPath string) {
	t.Helper()
	f := NewStoreFixture(t, dbPath, "cursorDiskKV")
	defer f.Close()

	f.AddSession("composer1", "Test Conversation", 1700000000000, []Bubble{
		{ID: "bubble1", Type: 1, Text: "Hello world"},
		{ID: "bubble2", Type: 2, Text: "Hi there"},
	}, nil)
}

// WorkspaceResult returns a serialized tool result pointing at path
func WorkspaceResult(path string) string {
	data, _ := json.Marshal(map[string]interface{}{
		"success": map[string]interface{}{
			"workspaceResults": map[string]interface{}{
				path: map[string]interface{}{"files": []string{}},
			},
		},
	})
	return string(data)
}

// CreateWorkspaceFixture creates workspaceStorage/<hash>/workspace.json
// recording folder, and returns the workspace directory
func CreateWorkspaceFixture(t *testing.T, basePath, workspaceHash, folder string) string {
	t.Helper()
	workspaceDir := filepath.Join(basePath, "workspaceStorage", workspaceHash)
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		t.Fatalf("Failed to create workspace directory: %v", err)
	}

	jsonData, _ := json.Marshal(map[string]interface{}{"folder": folder})
	if err := os.WriteFile(filepath.Join(workspaceDir, "workspace.json"), jsonData, 0644); err != nil {
		t.Fatalf("Failed to write workspace.json: %v", err)
	}

	return workspaceDir
}

// CreateMockCursorDir creates a Cursor User directory with a global store
// and one workspace store, and returns the base path
func CreateMockCursorDir(t *testing.T) string {
	t.Helper()
	basePath := CreateTempDir(t)

	CreateSQLiteFixture(t, filepath.Join(basePath, "globalStorage", "state.vscdb"))

	workspaceDir := CreateWorkspaceFixture(t, basePath, "workspace-hash-123", "file:///path/to/workspace")
	ws := NewStoreFixture(t, filepath.Join(workspaceDir, "state.vscdb"), "ItemTable")
	defer ws.Close()
	ws.AddSession("composer2", "Workspace Conversation", 1700000500000, []Bubble{
		{ID: "bubble3", Type: 1, Text: "From the workspace store"},
	}, nil)

	return basePath
}
