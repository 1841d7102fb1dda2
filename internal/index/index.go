// Package index is the locally-owned metadata store layered over the
// read-only session sources: nicknames, tags and derived per-session facts.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/iksnae/cursor-history/internal"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNicknameTaken is returned when another session already holds a nickname
	ErrNicknameTaken = errors.New("nickname already in use")
	// ErrEmptyTag is returned for tags that are blank after trimming
	ErrEmptyTag = errors.New("tag must not be empty")
)

// SessionMetadata is the derived record kept per synced session
type SessionMetadata struct {
	SessionID           string     `json:"sessionId" yaml:"sessionId"`
	Source              string     `json:"source" yaml:"source"`
	Title               string     `json:"title,omitempty" yaml:"title,omitempty"`
	Nickname            string     `json:"nickname,omitempty" yaml:"nickname,omitempty"`
	Tags                []string   `json:"tags" yaml:"tags"`
	ProjectPath         string     `json:"projectPath,omitempty" yaml:"projectPath,omitempty"`
	ProjectName         string     `json:"projectName,omitempty" yaml:"projectName,omitempty"`
	HasProject          bool       `json:"hasProject" yaml:"hasProject"`
	CreatedAt           *time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	FirstMessagePreview string     `json:"firstMessagePreview,omitempty" yaml:"firstMessagePreview,omitempty"`
	MessageCount        int        `json:"messageCount" yaml:"messageCount"`
	LastSyncedAt        *time.Time `json:"lastSyncedAt,omitempty" yaml:"lastSyncedAt,omitempty"`
}

// ListFilter narrows List
type ListFilter struct {
	TaggedOnly bool
	Limit      int // 0 means no limit
}

// ProjectCount is one row of Projects
type ProjectCount struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TagCount is one row of Tags
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Stats aggregates row counts by dimension
type Stats struct {
	TotalSessions    int            `json:"totalSessions"`
	WithProject      int            `json:"withProject"`
	WithNickname     int            `json:"withNickname"`
	Tagged           int            `json:"tagged"`
	DistinctProjects int            `json:"distinctProjects"`
	DistinctTags     int            `json:"distinctTags"`
	TotalMessages    int            `json:"totalMessages"`
	BySource         map[string]int `json:"bySource"`
}

const sessionColumns = `session_id, source, title, nickname, project_path, project_name,
	has_project, created_at, first_message_preview, message_count, last_synced_at`

// Index is a single-writer SQLite metadata store
type Index struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the index at path and applies migrations
func Open(ctx context.Context, path string) (*Index, error) {
	if path == "" {
		return nil, errors.New("index path is not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to index: %w", err)
	}

	goose.SetBaseFS(FS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		internal.LogError("Failed to apply index migrations: %v", err)
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	internal.LogDebug("Opened index %s", path)
	return &Index{db: db, path: path}, nil
}

func openDB(path string) (*sql.DB, error) {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(on)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "busy_timeout(5000)")

	dsn := fmt.Sprintf("file:%s?%s", path, params.Encode())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	// One connection serializes every writer in this process
	db.SetMaxOpenConns(1)
	return db, nil
}

// Path returns the index file location
func (ix *Index) Path() string {
	return ix.path
}

// Close closes the index
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Get returns the row for id, or nil when the session is not indexed
func (ix *Index) Get(ctx context.Context, id string) (*SessionMetadata, error) {
	return ix.getOne(ctx, "session_id = ?", id)
}

// GetByNickname returns the row whose nickname matches exactly, or nil
func (ix *Index) GetByNickname(ctx context.Context, nickname string) (*SessionMetadata, error) {
	if nickname == "" {
		return nil, nil
	}
	return ix.getOne(ctx, "nickname = ?", nickname)
}

// Exists reports whether id is indexed
func (ix *Index) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := ix.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE session_id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", id, err)
	}
	return true, nil
}

func (ix *Index) getOne(ctx context.Context, where string, arg interface{}) (*SessionMetadata, error) {
	rows, err := ix.query(ctx, where+" LIMIT 1", arg)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// List returns indexed sessions ordered by id
func (ix *Index) List(ctx context.Context, filter ListFilter) ([]*SessionMetadata, error) {
	where := "1 = 1"
	if filter.TaggedOnly {
		where = "session_id IN (SELECT session_id FROM session_tags)"
	}
	where += " ORDER BY session_id"
	if filter.Limit > 0 {
		where += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return ix.query(ctx, where)
}

// ListByProject returns sessions whose project path matches exactly
func (ix *Index) ListByProject(ctx context.Context, projectPath string) ([]*SessionMetadata, error) {
	return ix.query(ctx, "project_path = ? ORDER BY session_id", projectPath)
}

// FindByTag returns sessions carrying tag
func (ix *Index) FindByTag(ctx context.Context, tag string) ([]*SessionMetadata, error) {
	return ix.query(ctx,
		"session_id IN (SELECT session_id FROM session_tags WHERE tag = ?) ORDER BY session_id",
		strings.TrimSpace(tag))
}

// query selects sessions matching where and attaches their tags
func (ix *Index) query(ctx context.Context, where string, args ...interface{}) ([]*SessionMetadata, error) {
	rows, err := ix.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	var sessions []*SessionMetadata
	byID := make(map[string]*SessionMetadata)
	for rows.Next() {
		m, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, m)
		byID[m.SessionID] = m
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	if len(sessions) == 0 {
		return sessions, nil
	}
	if err := ix.attachTags(ctx, byID); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (ix *Index) attachTags(ctx context.Context, byID map[string]*SessionMetadata) error {
	var (
		rows *sql.Rows
		err  error
	)
	if len(byID) == 1 {
		for id := range byID {
			rows, err = ix.db.QueryContext(ctx, "SELECT session_id, tag FROM session_tags WHERE session_id = ? ORDER BY tag", id)
		}
	} else {
		rows, err = ix.db.QueryContext(ctx, "SELECT session_id, tag FROM session_tags ORDER BY tag")
	}
	if err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if m, ok := byID[id]; ok {
			m.Tags = append(m.Tags, tag)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*SessionMetadata, error) {
	var (
		m                                 SessionMetadata
		title, nickname, path, name, prev sql.NullString
		createdAt, lastSynced             sql.NullInt64
		hasProject                        bool
	)
	err := row.Scan(&m.SessionID, &m.Source, &title, &nickname, &path, &name,
		&hasProject, &createdAt, &prev, &m.MessageCount, &lastSynced)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	m.Title = title.String
	m.Nickname = nickname.String
	m.ProjectPath = path.String
	m.ProjectName = name.String
	m.HasProject = hasProject
	m.FirstMessagePreview = prev.String
	m.CreatedAt = fromUnixNano(createdAt)
	m.LastSyncedAt = fromUnixNano(lastSynced)
	m.Tags = []string{}
	return &m, nil
}

// Upsert inserts or replaces the row for m.SessionID. Tags are replaced in
// the same transaction.
func (ix *Index) Upsert(ctx context.Context, m *SessionMetadata) error {
	if m.SessionID == "" {
		return errors.New("session id is required")
	}
	source := m.Source
	if source == "" {
		source = "cursor"
	}
	tags, err := normalizeTags(m.Tags)
	if err != nil {
		return err
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			source = excluded.source,
			title = excluded.title,
			nickname = excluded.nickname,
			project_path = excluded.project_path,
			project_name = excluded.project_name,
			has_project = excluded.has_project,
			created_at = excluded.created_at,
			first_message_preview = excluded.first_message_preview,
			message_count = excluded.message_count,
			last_synced_at = excluded.last_synced_at`,
		m.SessionID, source, nullString(m.Title), nullString(m.Nickname),
		nullString(m.ProjectPath), nullString(m.ProjectName), m.HasProject,
		toUnixNano(m.CreatedAt), nullString(m.FirstMessagePreview), m.MessageCount,
		toUnixNano(m.LastSyncedAt))
	if err != nil {
		return mapConstraintError(fmt.Errorf("failed to upsert %s: %w", m.SessionID, err))
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_tags WHERE session_id = ?", m.SessionID); err != nil {
		return fmt.Errorf("failed to replace tags: %w", err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO session_tags (session_id, tag) VALUES (?, ?)", m.SessionID, tag); err != nil {
			return fmt.Errorf("failed to insert tag %q: %w", tag, err)
		}
	}

	return tx.Commit()
}

// SetNickname assigns or, when nickname is empty, clears a session's nickname
func (ix *Index) SetNickname(ctx context.Context, id, nickname string) error {
	res, err := ix.db.ExecContext(ctx,
		"UPDATE sessions SET nickname = ? WHERE session_id = ?",
		nullString(nickname), id)
	if err != nil {
		return mapConstraintError(fmt.Errorf("failed to set nickname: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &internal.SessionNotFoundError{ID: id}
	}
	return nil
}

// AddTag adds tag to a session. Adding a present tag is a no-op.
func (ix *Index) AddTag(ctx context.Context, id, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ErrEmptyTag
	}
	exists, err := ix.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return &internal.SessionNotFoundError{ID: id}
	}

	if _, err := ix.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO session_tags (session_id, tag) VALUES (?, ?)", id, tag); err != nil {
		return fmt.Errorf("failed to add tag: %w", err)
	}
	return nil
}

// RemoveTag removes tag from a session. Absent tags and unknown sessions
// are a no-op.
func (ix *Index) RemoveTag(ctx context.Context, id, tag string) error {
	if _, err := ix.db.ExecContext(ctx,
		"DELETE FROM session_tags WHERE session_id = ? AND tag = ?", id, strings.TrimSpace(tag)); err != nil {
		return fmt.Errorf("failed to remove tag: %w", err)
	}
	return nil
}

// Projects returns distinct project paths with session counts, largest first
func (ix *Index) Projects(ctx context.Context) ([]ProjectCount, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT project_path, COALESCE(MAX(project_name), ''), COUNT(*)
		FROM sessions
		WHERE has_project = 1 AND project_path IS NOT NULL AND project_path != ''
		GROUP BY project_path
		ORDER BY COUNT(*) DESC, project_path`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	projects := []ProjectCount{}
	for rows.Next() {
		var p ProjectCount
		if err := rows.Scan(&p.Path, &p.Name, &p.Count); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Tags returns distinct tags with session counts, largest first
func (ix *Index) Tags(ctx context.Context) ([]TagCount, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT tag, COUNT(*) FROM session_tags
		GROUP BY tag
		ORDER BY COUNT(*) DESC, tag`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	tags := []TagCount{}
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		tags = append(tags, tc)
	}
	return tags, rows.Err()
}

// Stats returns row counts by dimension
func (ix *Index) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{BySource: make(map[string]int)}

	err := ix.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(has_project), 0),
			COUNT(nickname),
			COALESCE(SUM(message_count), 0),
			COUNT(DISTINCT CASE WHEN has_project = 1 THEN project_path END)
		FROM sessions`).Scan(&stats.TotalSessions, &stats.WithProject, &stats.WithNickname,
		&stats.TotalMessages, &stats.DistinctProjects)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	err = ix.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT session_id), COUNT(DISTINCT tag) FROM session_tags").
		Scan(&stats.Tagged, &stats.DistinctTags)
	if err != nil {
		return nil, fmt.Errorf("failed to count tags: %w", err)
	}

	rows, err := ix.db.QueryContext(ctx, "SELECT source, COUNT(*) FROM sessions GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		stats.BySource[source] = n
	}
	return stats, rows.Err()
}

func normalizeTags(tags []string) ([]string, error) {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return nil, ErrEmptyTag
		}
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out, nil
}

func mapConstraintError(err error) error {
	var sqliteErr *sqlite.Error
	// nickname is the only UNIQUE column not covered by ON CONFLICT
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(sqliteErr.Error(), "UNIQUE") {
		return fmt.Errorf("%w: %v", ErrNicknameTaken, err)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Timestamps are stored as Unix nanoseconds
func toUnixNano(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromUnixNano(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}
