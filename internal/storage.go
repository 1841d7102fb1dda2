package internal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Source is the read surface over one or more session stores
type Source interface {
	ListIDs(ctx context.Context, limit int) ([]string, error)
	GetSession(ctx context.Context, id string) (*RawComposer, error)
	GetMessages(ctx context.Context, id string) ([]*RawBubble, error)
	Close() error
}

// StoreLocation identifies one physical store file
type StoreLocation struct {
	Path            string
	WorkspaceFolder string // folder from workspace.json, per-workspace stores only
}

// Storage reads session records from a single state.vscdb file
type Storage struct {
	db       *sql.DB
	table    string
	location StoreLocation
}

// NewStorage wraps an open database whose key-value table is already known
func NewStorage(db *sql.DB, table string, location StoreLocation) *Storage {
	return &Storage{db: db, table: table, location: location}
}

// OpenStorage opens the store at loc read-only and detects its layout
func OpenStorage(ctx context.Context, loc StoreLocation, policy RetryPolicy) (*Storage, error) {
	db, err := OpenDatabase(ctx, loc.Path, policy)
	if err != nil {
		return nil, err
	}

	table, err := DetectKVTable(ctx, db)
	if err != nil {
		db.Close()
		return nil, &DBConnectionError{Path: loc.Path, Err: err}
	}
	LogDebug("Opened %s (table %s)", loc.Path, table)

	return NewStorage(db, table, loc), nil
}

// Path returns the store file path
func (s *Storage) Path() string {
	return s.location.Path
}

// Table returns the key-value table in use
func (s *Storage) Table() string {
	return s.table
}

// ListIDs returns session ids ordered by raw key descending
func (s *Storage) ListIDs(ctx context.Context, limit int) ([]string, error) {
	keys, err := QueryKeys(ctx, s.db, s.table, ComposerKeyPrefix+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query composers: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, ComposerKeyPrefix)
		if id == "" || strings.Contains(id, ":") {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetSession loads one composer. A miss returns nil, nil; a malformed
// payload returns a DataCorruptionError.
func (s *Storage) GetSession(ctx context.Context, id string) (*RawComposer, error) {
	key := ComposerKey(id)
	value, err := QueryValue(ctx, s.db, s.table, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load composer %s: %w", id, err)
	}
	if value == nil {
		return nil, nil
	}

	composer, err := ParseRawComposer(key, value)
	if err != nil {
		return nil, err
	}
	composer.StorePath = s.location.Path
	composer.WorkspaceFolder = s.location.WorkspaceFolder

	return composer, nil
}

// GetMessages loads a session's bubbles in header order. Headers whose
// bubble is missing or unreadable are skipped.
func (s *Storage) GetMessages(ctx context.Context, id string) ([]*RawBubble, error) {
	composer, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if composer == nil {
		return nil, &SessionNotFoundError{ID: id}
	}

	if len(composer.FullConversationHeadersOnly) == 0 && len(composer.Conversation) > 0 {
		bubbles := make([]*RawBubble, 0, len(composer.Conversation))
		for i := range composer.Conversation {
			bubble := composer.Conversation[i]
			bubble.ChatID = id
			bubbles = append(bubbles, &bubble)
		}
		return bubbles, nil
	}

	bubbles := make([]*RawBubble, 0, len(composer.FullConversationHeadersOnly))
	for _, header := range composer.FullConversationHeadersOnly {
		key := BubbleKey(id, header.BubbleID)
		value, err := QueryValue(ctx, s.db, s.table, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load bubble %s: %w", header.BubbleID, err)
		}
		if value == nil {
			continue
		}

		bubble, err := ParseRawBubble(key, value)
		if err != nil {
			LogDebug("Skipping bubble %s: %v", header.BubbleID, err)
			continue
		}
		if bubble.Type == 0 {
			bubble.Type = header.Type
		}
		bubbles = append(bubbles, bubble)
	}

	return bubbles, nil
}

// Close closes the underlying database
func (s *Storage) Close() error {
	return s.db.Close()
}
