package internal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/iksnae/cursor-history/testutil"
)

func TestAggregatedStorage(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	ctx := context.Background()

	first := testutil.NewStoreFixture(t, filepath.Join(dir, "a", "state.vscdb"), TableCursorDiskKV)
	first.AddSession("aaa", "from first", 1000, []testutil.Bubble{{ID: "b1", Type: 1, Text: "first copy"}}, nil)
	first.AddSession("ccc", "only first", 3000, nil, nil)
	first.Close()

	second := testutil.NewStoreFixture(t, filepath.Join(dir, "b", "state.vscdb"), TableItemTable)
	second.AddSession("aaa", "from second", 1000, []testutil.Bubble{{ID: "b1", Type: 1, Text: "second copy"}}, nil)
	second.AddSession("bbb", "only second", 2000, []testutil.Bubble{{ID: "b9", Type: 2, Text: "answer"}}, nil)
	second.Close()

	agg, err := OpenAggregatedStorage(ctx, []StoreLocation{
		{Path: first.Path},
		{Path: filepath.Join(dir, "missing", "state.vscdb")},
		{Path: second.Path},
	}, fastPolicy())
	if err != nil {
		t.Fatalf("OpenAggregatedStorage() error = %v", err)
	}
	defer agg.Close()

	if len(agg.Stores()) != 2 {
		t.Fatalf("expected the missing store to be skipped, got %d stores", len(agg.Stores()))
	}

	t.Run("ListIDs merges and dedupes", func(t *testing.T) {
		ids, err := agg.ListIDs(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"ccc", "bbb", "aaa"}
		if len(ids) != len(want) {
			t.Fatalf("ListIDs() = %v, want %v", ids, want)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
			}
		}

		limited, err := agg.ListIDs(ctx, 2)
		if err != nil || len(limited) != 2 || limited[0] != "ccc" {
			t.Errorf("ListIDs(2) = %v, %v", limited, err)
		}
	})

	t.Run("first store wins", func(t *testing.T) {
		composer, err := agg.GetSession(ctx, "aaa")
		if err != nil || composer == nil || composer.Name != "from first" {
			t.Errorf("GetSession() = %+v, %v", composer, err)
		}
		bubbles, err := agg.GetMessages(ctx, "aaa")
		if err != nil || len(bubbles) != 1 || bubbles[0].Text != "first copy" {
			t.Errorf("GetMessages() = %+v, %v", bubbles, err)
		}
	})

	t.Run("falls through to later stores", func(t *testing.T) {
		bubbles, err := agg.GetMessages(ctx, "bbb")
		if err != nil || len(bubbles) != 1 {
			t.Errorf("GetMessages() = %+v, %v", bubbles, err)
		}
	})

	t.Run("miss", func(t *testing.T) {
		composer, err := agg.GetSession(ctx, "zzz")
		if err != nil || composer != nil {
			t.Errorf("GetSession(miss) = %+v, %v", composer, err)
		}
		if _, err := agg.GetMessages(ctx, "zzz"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestOpenAggregatedStorage_NoneOpen(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	_, err := OpenAggregatedStorage(context.Background(), []StoreLocation{
		{Path: filepath.Join(dir, "nope.vscdb")},
	}, fastPolicy())

	var connErr *DBConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("expected DBConnectionError, got %v", err)
	}

	if _, err := OpenAggregatedStorage(context.Background(), nil, fastPolicy()); err == nil {
		t.Error("expected an error with no locations")
	}
}
