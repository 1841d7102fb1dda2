// Package history ties the read-only session sources to the metadata index:
// lookup with sync-on-demand, bulk sync, listing, search, annotations and
// stats.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iksnae/cursor-history/internal"
	"github.com/iksnae/cursor-history/internal/index"
)

// Sort orders accepted by ListSessions
const (
	SortNewest       = "newest"
	SortOldest       = "oldest"
	SortMostMessages = "most_messages"
)

var (
	// ErrUnknownSort is returned for an unsupported sort order
	ErrUnknownSort = errors.New("unknown sort order")
	// ErrUnknownSource is returned when a source filter names no backend
	ErrUnknownSource = errors.New("unknown source")
)

// Backend is one named session source
type Backend struct {
	Name   string
	Source internal.Source
}

// Options configures a Manager
type Options struct {
	AutoSync      bool // sync sessions missing from the index on lookup
	StatsSample   int  // cap on source ids counted per backend by GetStats
	PreviewLength int  // runes kept in the first-message preview
	SyncLimit     int  // default SyncSessions limit
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		AutoSync:      true,
		StatsSample:   1000,
		PreviewLength: 100,
		SyncLimit:     100,
	}
}

// Session is an indexed session, with messages when requested
type Session struct {
	index.SessionMetadata `yaml:",inline"`
	Messages              []internal.Message `json:"messages,omitempty" yaml:"messages,omitempty"`
}

// GetOptions controls GetSession
type GetOptions struct {
	IncludeMessages bool
	Parse           internal.ParseOptions
}

// ListOptions controls ListSessions. Tag beats ProjectPath, which beats the
// unfiltered listing.
type ListOptions struct {
	ProjectPath string
	Tag         string
	TaggedOnly  bool
	SortBy      string
	Limit       int
	Source      string
}

// SearchOptions controls SearchSessions
type SearchOptions struct {
	ProjectPath   string
	TaggedOnly    bool
	Limit         int
	CaseSensitive bool
}

// SyncOptions controls SyncSessions
type SyncOptions struct {
	Limit  int // per backend; 0 means Options.SyncLimit
	Source string
}

// Stats merges index counts with a bounded sample of the sources
type Stats struct {
	index.Stats
	SourceSessions int            `json:"sourceSessions"`
	SourceCounts   map[string]int `json:"sourceCounts"`
	Sampled        bool           `json:"sampled"`  // a backend hit the sample cap
	Unsynced       int            `json:"unsynced"` // approximate
}

// Manager is the handle every operation goes through
type Manager struct {
	backends []Backend
	index    *index.Index
	opts     Options
	now      func() time.Time
}

// NewManager creates a Manager over idx and one or more backends
func NewManager(idx *index.Index, opts Options, backends ...Backend) (*Manager, error) {
	if idx == nil {
		return nil, errors.New("index is required")
	}
	if len(backends) == 0 {
		return nil, errors.New("at least one source backend is required")
	}
	seen := make(map[string]bool)
	for _, b := range backends {
		if b.Name == "" || b.Source == nil {
			return nil, errors.New("backend requires a name and a source")
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("duplicate backend %q", b.Name)
		}
		seen[b.Name] = true
	}

	defaults := DefaultOptions()
	if opts.StatsSample <= 0 {
		opts.StatsSample = defaults.StatsSample
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = defaults.PreviewLength
	}
	if opts.SyncLimit <= 0 {
		opts.SyncLimit = defaults.SyncLimit
	}

	return &Manager{backends: backends, index: idx, opts: opts, now: time.Now}, nil
}

// Close closes every source and the index
func (m *Manager) Close() error {
	var firstErr error
	for _, b := range m.backends {
		if err := b.Source.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ResolveID maps a nickname to its session id; anything else is returned as is
func (m *Manager) ResolveID(ctx context.Context, idOrNickname string) (string, error) {
	idOrNickname = strings.TrimSpace(idOrNickname)
	meta, err := m.index.GetByNickname(ctx, idOrNickname)
	if err != nil {
		return "", err
	}
	if meta != nil {
		return meta.SessionID, nil
	}
	return idOrNickname, nil
}

// GetSession resolves idOrNickname by nickname, then by id, then (with
// auto-sync) by syncing it from the sources.
func (m *Manager) GetSession(ctx context.Context, idOrNickname string, opts GetOptions) (*Session, error) {
	idOrNickname = strings.TrimSpace(idOrNickname)
	meta, err := m.index.GetByNickname(ctx, idOrNickname)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		if meta, err = m.index.Get(ctx, idOrNickname); err != nil {
			return nil, err
		}
	}
	if meta == nil && m.opts.AutoSync {
		if m.syncSession(ctx, idOrNickname) != nil {
			if meta, err = m.index.Get(ctx, idOrNickname); err != nil {
				return nil, err
			}
		}
	}
	if meta == nil {
		return nil, &internal.SessionNotFoundError{ID: idOrNickname}
	}

	session := &Session{SessionMetadata: *meta}
	if opts.IncludeMessages {
		msgs, err := m.Messages(ctx, meta.SessionID, opts.Parse)
		if err != nil {
			return nil, err
		}
		session.Messages = msgs
	}
	return session, nil
}

// Messages reads and decodes a session's messages from the sources
func (m *Manager) Messages(ctx context.Context, id string, opts internal.ParseOptions) ([]internal.Message, error) {
	b, composer, err := m.findInSources(ctx, id, "")
	if err != nil {
		return nil, err
	}
	if composer == nil {
		return nil, &internal.SessionNotFoundError{ID: id}
	}

	bubbles, err := b.Source.GetMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	return internal.DecodeMessages(bubbles, opts), nil
}

// findInSources returns the first backend holding id. only restricts the
// search to one backend.
func (m *Manager) findInSources(ctx context.Context, id, only string) (Backend, *internal.RawComposer, error) {
	for _, b := range m.backends {
		if only != "" && b.Name != only {
			continue
		}
		composer, err := b.Source.GetSession(ctx, id)
		if err != nil {
			return Backend{}, nil, err
		}
		if composer != nil {
			return b, composer, nil
		}
	}
	return Backend{}, nil, nil
}

// ListSessions lists indexed sessions
func (m *Manager) ListSessions(ctx context.Context, opts ListOptions) ([]*index.SessionMetadata, error) {
	if err := validateSort(opts.SortBy); err != nil {
		return nil, err
	}
	if err := m.checkSource(opts.Source); err != nil {
		return nil, err
	}

	var (
		rows []*index.SessionMetadata
		err  error
	)
	switch {
	case opts.Tag != "":
		rows, err = m.index.FindByTag(ctx, opts.Tag)
	case opts.ProjectPath != "":
		rows, err = m.index.ListByProject(ctx, opts.ProjectPath)
		rows = filterTagged(rows, opts.TaggedOnly)
	default:
		rows, err = m.index.List(ctx, index.ListFilter{TaggedOnly: opts.TaggedOnly})
	}
	if err != nil {
		return nil, err
	}

	if opts.Source != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Source == opts.Source {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	sortSessions(rows, opts.SortBy)
	return limitRows(rows, opts.Limit), nil
}

// SearchSessions returns sessions whose nickname, preview, any tag, or
// project name contains query. Matches are unranked and ordered newest first.
func (m *Manager) SearchSessions(ctx context.Context, query string, opts SearchOptions) ([]*index.SessionMetadata, error) {
	var (
		rows []*index.SessionMetadata
		err  error
	)
	if opts.ProjectPath != "" {
		rows, err = m.index.ListByProject(ctx, opts.ProjectPath)
		rows = filterTagged(rows, opts.TaggedOnly)
	} else {
		rows, err = m.index.List(ctx, index.ListFilter{TaggedOnly: opts.TaggedOnly})
	}
	if err != nil {
		return nil, err
	}

	match := func(field string) bool {
		if opts.CaseSensitive {
			return strings.Contains(field, query)
		}
		return strings.Contains(strings.ToLower(field), strings.ToLower(query))
	}

	var hits []*index.SessionMetadata
	for _, row := range rows {
		if matchesSession(row, match) {
			hits = append(hits, row)
		}
	}

	sortSessions(hits, SortNewest)
	return limitRows(hits, opts.Limit), nil
}

func matchesSession(row *index.SessionMetadata, match func(string) bool) bool {
	if match(row.Nickname) || match(row.FirstMessagePreview) {
		return true
	}
	for _, tag := range row.Tags {
		if match(tag) {
			return true
		}
	}
	return match(row.ProjectName)
}

// SetNickname names a session. The session must exist in a source.
// Surrounding whitespace is dropped and a blank name clears the nickname.
func (m *Manager) SetNickname(ctx context.Context, id, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if err := m.ensureIndexed(ctx, id); err != nil {
		return err
	}
	return m.index.SetNickname(ctx, id, nickname)
}

// AddTag tags a session. The session must exist in a source.
func (m *Manager) AddTag(ctx context.Context, id, tag string) error {
	if strings.TrimSpace(tag) == "" {
		return index.ErrEmptyTag
	}
	if err := m.ensureIndexed(ctx, id); err != nil {
		return err
	}
	return m.index.AddTag(ctx, id, tag)
}

// RemoveTag untags a session. Unknown sessions and absent tags are a no-op.
func (m *Manager) RemoveTag(ctx context.Context, id, tag string) error {
	return m.index.RemoveTag(ctx, id, tag)
}

// ensureIndexed checks the source still holds id and gives the annotation a
// row to land on
func (m *Manager) ensureIndexed(ctx context.Context, id string) error {
	_, composer, err := m.findInSources(ctx, id, "")
	if err != nil {
		return err
	}
	if composer == nil {
		return &internal.SessionNotFoundError{ID: id}
	}

	exists, err := m.index.Exists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if !m.opts.AutoSync {
		return &internal.SessionNotFoundError{ID: id}
	}
	if m.syncSession(ctx, id) == nil {
		return fmt.Errorf("failed to sync session %s", id)
	}
	return nil
}

// SyncSessions indexes up to Limit most recent ids per selected backend.
// Indexed ids are skipped. It returns the number of rows added.
func (m *Manager) SyncSessions(ctx context.Context, opts SyncOptions) (int, error) {
	if err := m.checkSource(opts.Source); err != nil {
		return 0, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = m.opts.SyncLimit
	}

	added := 0
	for _, b := range m.backends {
		if opts.Source != "" && b.Name != opts.Source {
			continue
		}
		ids, err := b.Source.ListIDs(ctx, limit)
		if err != nil {
			internal.LogWarn("Failed to list sessions from %s: %v", b.Name, err)
			continue
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return added, err
			}
			exists, err := m.index.Exists(ctx, id)
			if err != nil {
				return added, err
			}
			if exists {
				continue
			}
			if m.syncFrom(ctx, b, id) != nil {
				added++
			}
		}
	}

	internal.LogInfo("Synced %d new session(s)", added)
	return added, nil
}

// syncSession indexes id from the first backend holding it. Failures are
// logged and reported as nil.
func (m *Manager) syncSession(ctx context.Context, id string) *index.SessionMetadata {
	b, composer, err := m.findInSources(ctx, id, "")
	if err != nil {
		internal.LogWarn("Failed to load session %s: %v", id, err)
		return nil
	}
	if composer == nil {
		return nil
	}
	return m.syncComposer(ctx, b, composer)
}

func (m *Manager) syncFrom(ctx context.Context, b Backend, id string) *index.SessionMetadata {
	composer, err := b.Source.GetSession(ctx, id)
	if err != nil {
		internal.LogWarn("Failed to load session %s from %s: %v", id, b.Name, err)
		return nil
	}
	if composer == nil {
		return nil
	}
	return m.syncComposer(ctx, b, composer)
}

func (m *Manager) syncComposer(ctx context.Context, b Backend, composer *internal.RawComposer) *index.SessionMetadata {
	id := composer.ComposerID
	bubbles, err := b.Source.GetMessages(ctx, id)
	if err != nil {
		internal.LogWarn("Failed to load messages for %s: %v", id, err)
		return nil
	}

	meta := m.deriveMetadata(b.Name, composer, bubbles)
	if err := m.index.Upsert(ctx, meta); err != nil {
		internal.LogWarn("Failed to index session %s: %v", id, err)
		return nil
	}
	internal.LogDebug("Indexed session %s (%d messages)", id, meta.MessageCount)
	return meta
}

// deriveMetadata computes the index row for a source session
func (m *Manager) deriveMetadata(source string, composer *internal.RawComposer, bubbles []*internal.RawBubble) *index.SessionMetadata {
	messages := internal.DecodeMessages(bubbles, internal.ParseOptions{})
	ws := internal.ExtractWorkspace(bubbles)
	if !ws.HasProject && composer.WorkspaceFolder != "" {
		ws.PrimaryPath = composer.WorkspaceFolder
		ws.ProjectName = internal.ProjectName(composer.WorkspaceFolder)
		ws.HasProject = true
	}

	now := m.now()
	meta := &index.SessionMetadata{
		SessionID:    composer.ComposerID,
		Source:       source,
		Title:        composer.Name,
		ProjectPath:  ws.PrimaryPath,
		ProjectName:  ws.ProjectName,
		HasProject:   ws.HasProject,
		MessageCount: len(messages),
		LastSyncedAt: &now,
	}

	if composer.CreatedAt > 0 {
		created := composer.GetCreatedAt()
		meta.CreatedAt = &created
	} else {
		for _, msg := range messages {
			if msg.Timestamp != nil {
				meta.CreatedAt = msg.Timestamp
				break
			}
		}
	}

	for _, msg := range messages {
		if msg.Role == internal.RoleUser && strings.TrimSpace(msg.Content) != "" {
			meta.FirstMessagePreview = Preview(msg.Content, m.opts.PreviewLength)
			break
		}
	}

	return meta
}

// Preview collapses whitespace and truncates to length runes
func Preview(content string, length int) string {
	return internal.TruncateContent(strings.Join(strings.Fields(content), " "), length)
}

// GetProjects returns indexed projects with session counts
func (m *Manager) GetProjects(ctx context.Context) ([]index.ProjectCount, error) {
	return m.index.Projects(ctx)
}

// GetTags returns tags with session counts
func (m *Manager) GetTags(ctx context.Context) ([]index.TagCount, error) {
	return m.index.Tags(ctx)
}

// GetStats merges index counts with a bounded count of source ids. Source
// figures are approximate once a backend reaches the sample cap.
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	ixStats, err := m.index.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Stats: *ixStats, SourceCounts: make(map[string]int)}
	for _, b := range m.backends {
		ids, err := b.Source.ListIDs(ctx, m.opts.StatsSample)
		if err != nil {
			internal.LogWarn("Failed to count sessions in %s: %v", b.Name, err)
			continue
		}
		stats.SourceCounts[b.Name] = len(ids)
		stats.SourceSessions += len(ids)
		if len(ids) >= m.opts.StatsSample {
			stats.Sampled = true
		}
	}

	if diff := stats.SourceSessions - stats.TotalSessions; diff > 0 {
		stats.Unsynced = diff
	}
	return stats, nil
}

func (m *Manager) checkSource(name string) error {
	if name == "" {
		return nil
	}
	for _, b := range m.backends {
		if b.Name == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownSource, name)
}

func validateSort(by string) error {
	switch by {
	case "", SortNewest, SortOldest, SortMostMessages:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownSort, by)
}

// sortSessions orders rows in place. Undated rows sort last under both
// newest and oldest. Ties break by session id.
func sortSessions(rows []*index.SessionMetadata, by string) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch by {
		case SortMostMessages:
			if a.MessageCount != b.MessageCount {
				return a.MessageCount > b.MessageCount
			}
		default:
			switch {
			case a.CreatedAt == nil && b.CreatedAt == nil:
			case a.CreatedAt == nil:
				return false
			case b.CreatedAt == nil:
				return true
			case !a.CreatedAt.Equal(*b.CreatedAt):
				if by == SortOldest {
					return a.CreatedAt.Before(*b.CreatedAt)
				}
				return a.CreatedAt.After(*b.CreatedAt)
			}
		}
		return a.SessionID < b.SessionID
	})
}

func filterTagged(rows []*index.SessionMetadata, taggedOnly bool) []*index.SessionMetadata {
	if !taggedOnly {
		return rows
	}
	filtered := rows[:0]
	for _, row := range rows {
		if len(row.Tags) > 0 {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

func limitRows(rows []*index.SessionMetadata, limit int) []*index.SessionMetadata {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
