package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// AggregatedStorage fans reads out over several stores in discovery order.
// Duplicate ids are not reconciled: the first store holding an id wins.
type AggregatedStorage struct {
	stores []*Storage
}

// NewAggregatedStorage creates an AggregatedStorage over already-open stores
func NewAggregatedStorage(stores ...*Storage) *AggregatedStorage {
	return &AggregatedStorage{stores: stores}
}

// OpenAggregatedStorage opens every location. Stores that fail to open are
// skipped; the first failure is returned only when none open.
func OpenAggregatedStorage(ctx context.Context, locations []StoreLocation, policy RetryPolicy) (*AggregatedStorage, error) {
	var (
		firstErr error
		stores   []*Storage
	)

	for _, loc := range locations {
		s, err := OpenStorage(ctx, loc, policy)
		if err != nil {
			LogWarn("Skipping store %s: %v", loc.Path, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stores = append(stores, s)
	}

	if len(stores) == 0 {
		if firstErr == nil {
			firstErr = &DBConnectionError{Path: "", Err: errors.New("no session stores found")}
		}
		return nil, firstErr
	}

	LogDebug("Opened %d of %d session store(s)", len(stores), len(locations))
	return NewAggregatedStorage(stores...), nil
}

// Stores returns the underlying stores in discovery order
func (a *AggregatedStorage) Stores() []*Storage {
	return a.stores
}

// ListIDs merges ids from every store, deduplicated and sorted descending
func (a *AggregatedStorage) ListIDs(ctx context.Context, limit int) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string

	for _, s := range a.stores {
		storeIDs, err := s.ListIDs(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Path(), err)
		}
		for _, id := range storeIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// GetSession returns the first store's hit
func (a *AggregatedStorage) GetSession(ctx context.Context, id string) (*RawComposer, error) {
	for _, s := range a.stores {
		composer, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if composer != nil {
			return composer, nil
		}
	}
	return nil, nil
}

// GetMessages returns messages from the first store that holds the session
func (a *AggregatedStorage) GetMessages(ctx context.Context, id string) ([]*RawBubble, error) {
	for _, s := range a.stores {
		bubbles, err := s.GetMessages(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		return bubbles, err
	}
	return nil, &SessionNotFoundError{ID: id}
}

// Close closes every store and returns the first error
func (a *AggregatedStorage) Close() error {
	var firstErr error
	for _, s := range a.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
