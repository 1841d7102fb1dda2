package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/iksnae/cursor-history/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func ptrTime(ms int64) *time.Time {
	t := time.UnixMilli(ms)
	return &t
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	ix, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(ctx, &SessionMetadata{SessionID: "s1"}))
	require.NoError(t, ix.Close())

	ix, err = Open(ctx, path)
	require.NoError(t, err)
	defer ix.Close()

	m, err := ix.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, path, ix.Path())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	require.Error(t, err)
}

func TestUpsertGetRoundTrip(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	m := &SessionMetadata{
		SessionID:           "0b8f3d4e-1111-4c1c-9a2b-0123456789ab",
		Source:              "cursor",
		Title:               "Refactor auth",
		Nickname:            "auth",
		Tags:                []string{"backend", "urgent"},
		ProjectPath:         "/Users/me/projects/api",
		ProjectName:         "api",
		HasProject:          true,
		CreatedAt:           ptrTime(1700000000000),
		FirstMessagePreview: "Can you refactor the auth middleware?",
		MessageCount:        12,
		LastSyncedAt:        ptrTime(1700000500000),
	}
	require.NoError(t, ix.Upsert(ctx, m))

	got, err := ix.Get(ctx, m.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, m.SessionID, got.SessionID)
	assert.Equal(t, m.Source, got.Source)
	assert.Equal(t, m.Title, got.Title)
	assert.Equal(t, m.Nickname, got.Nickname)
	assert.Equal(t, m.Tags, got.Tags)
	assert.Equal(t, m.ProjectPath, got.ProjectPath)
	assert.Equal(t, m.ProjectName, got.ProjectName)
	assert.Equal(t, m.HasProject, got.HasProject)
	assert.True(t, m.CreatedAt.Equal(*got.CreatedAt))
	assert.Equal(t, m.FirstMessagePreview, got.FirstMessagePreview)
	assert.Equal(t, m.MessageCount, got.MessageCount)
	assert.True(t, m.LastSyncedAt.Equal(*got.LastSyncedAt))
}

func TestUpsertGetRoundTrip_SubMillisecond(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC)
	synced := time.Now()
	m := &SessionMetadata{
		SessionID:    "s1",
		Nickname:     " nick ",
		CreatedAt:    &created,
		LastSyncedAt: &synced,
	}
	require.NoError(t, ix.Upsert(ctx, m))

	got, err := ix.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got.CreatedAt)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, created.Equal(*got.CreatedAt), "created_at read back as %v", got.CreatedAt)
	assert.True(t, synced.Equal(*got.LastSyncedAt), "last_synced_at read back as %v", got.LastSyncedAt)
	assert.Equal(t, " nick ", got.Nickname)

	byNick, err := ix.GetByNickname(ctx, " nick ")
	require.NoError(t, err)
	require.NotNil(t, byNick)
	assert.Equal(t, "s1", byNick.SessionID)
}

func TestUpsert_Minimal(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, &SessionMetadata{SessionID: "bare"}))
	got, err := ix.Get(ctx, "bare")
	require.NoError(t, err)
	assert.Equal(t, "cursor", got.Source)
	assert.Nil(t, got.CreatedAt)
	assert.Nil(t, got.LastSyncedAt)
	assert.Empty(t, got.Tags)
	assert.False(t, got.HasProject)

	require.Error(t, ix.Upsert(ctx, &SessionMetadata{}))
}

func TestUpsert_ReplacesTags(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, &SessionMetadata{SessionID: "s1", Tags: []string{"a", "b"}}))
	require.NoError(t, ix.Upsert(ctx, &SessionMetadata{SessionID: "s1", Tags: []string{" c ", "c"}}))

	got, err := ix.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got.Tags)

	assert.ErrorIs(t, ix.Upsert(ctx, &SessionMetadata{SessionID: "s1", Tags: []string{"  "}}), ErrEmptyTag)
}

func TestGet_Miss(t *testing.T) {
	ix := openTestIndex(t)
	got, err := ix.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNicknames(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, ix.Upsert(ctx, &SessionMetadata{SessionID: "s1"}))
	require.NoError(t, ix.Upsert(ctx, &SessionMetadata{SessionID: "s2"}))

	require.NoError(t, ix.SetNickname(ctx, "s1", "alpha"))
	got, err := ix.GetByNickname(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.SessionID)

	// exact match only
	got, err = ix.GetByNickname(ctx, "Alpha")
	require.NoError(t, err)
	assert.Nil(t, got)

	// reassigning the same nickname to the same session is fine
	require.NoError(t, ix.SetNickname(ctx, "s1", "alpha"))

	err = ix.SetNickname(ctx, "s2", "alpha")
	assert.ErrorIs(t, err, ErrNicknameTaken)

	err = ix.Upsert(ctx, &SessionMetadata{SessionID: "s2", Nickname: "alpha"})
	assert.ErrorIs(t, err, ErrNicknameTaken)

	require.NoError(t, ix.SetNickname(ctx, "s1", ""))
	got, err = ix.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got.Nickname)

	// the cleared nickname is free again
	require.NoError(t, ix.SetNickname(ctx, "s2", "alpha"))

	err = ix.SetNickname(ctx, "missing", "x")
	var notFound *internal.SessionNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestTags_AddRemove(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, ix.Upsert(ctx, &SessionMetadata{SessionID: "s1", Tags: []string{"keep"}}))

	before, err := ix.Get(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, ix.AddTag(ctx, "s1", "t"))
	require.NoError(t, ix.AddTag(ctx, "s1", " t "))

	mid, err := ix.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep", "t"}, mid.Tags)

	require.NoError(t, ix.RemoveTag(ctx, "s1", "t"))
	after, err := ix.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, before.Tags, after.Tags)

	// no-ops
	require.NoError(t, ix.RemoveTag(ctx, "s1", "absent"))
	require.NoError(t, ix.RemoveTag(ctx, "unknown", "t"))

	assert.ErrorIs(t, ix.AddTag(ctx, "s1", "   "), ErrEmptyTag)
	assert.ErrorIs(t, ix.AddTag(ctx, "unknown", "t"), internal.ErrSessionNotFound)
}

func TestListing(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	rows := []*SessionMetadata{
		{SessionID: "a", ProjectPath: "/p/api", ProjectName: "api", HasProject: true, Tags: []string{"x"}, MessageCount: 3},
		{SessionID: "b", ProjectPath: "/p/api", ProjectName: "api", HasProject: true, MessageCount: 4},
		{SessionID: "c", ProjectPath: "/p/web", ProjectName: "web", HasProject: true, Tags: []string{"x", "y"}, Source: "cursor-nightly"},
		{SessionID: "d"},
	}
	for _, m := range rows {
		require.NoError(t, ix.Upsert(ctx, m))
	}

	all, err := ix.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, []string{"x"}, all[0].Tags)
	assert.Equal(t, []string{"x", "y"}, all[2].Tags)

	limited, err := ix.List(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	tagged, err := ix.List(ctx, ListFilter{TaggedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(tagged))

	byProject, err := ix.ListByProject(ctx, "/p/api")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(byProject))

	none, err := ix.ListByProject(ctx, "/p/ap")
	require.NoError(t, err)
	assert.Empty(t, none)

	byTag, err := ix.FindByTag(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(byTag))

	projects, err := ix.Projects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ProjectCount{
		{Path: "/p/api", Name: "api", Count: 2},
		{Path: "/p/web", Name: "web", Count: 1},
	}, projects)

	tags, err := ix.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{{Tag: "x", Count: 2}, {Tag: "y", Count: 1}}, tags)

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalSessions)
	assert.Equal(t, 3, stats.WithProject)
	assert.Equal(t, 0, stats.WithNickname)
	assert.Equal(t, 2, stats.Tagged)
	assert.Equal(t, 2, stats.DistinctProjects)
	assert.Equal(t, 2, stats.DistinctTags)
	assert.Equal(t, 7, stats.TotalMessages)
	assert.Equal(t, map[string]int{"cursor": 3, "cursor-nightly": 1}, stats.BySource)
}

func TestEmptyIndex(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	all, err := ix.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	projects, err := ix.Projects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalSessions)
	assert.Empty(t, stats.BySource)
}

func ids(rows []*SessionMetadata) []string {
	out := make([]string, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.SessionID)
	}
	return out
}
