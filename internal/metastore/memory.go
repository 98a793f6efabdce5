package metastore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fernhill/discoveryd/internal/candidate"
)

// MemoryStore implements Store in memory. It backs tests and embedded
// single-process deployments where Postgres is not available.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]Record   // keyed by contentType/id
	interests map[string][]string // keyed by user id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]Record),
		interests: make(map[string][]string),
	}
}

// Put inserts or replaces a record.
func (s *MemoryStore) Put(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[string(r.ContentType)+"/"+r.ID] = r
}

// SetInterests records a user's interest topics.
func (s *MemoryStore) SetInterests(userID string, topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interests[userID] = append([]string(nil), topics...)
}

// FindMany returns matching records, newest first.
func (s *MemoryStore) FindMany(ctx context.Context, contentType candidate.ContentType, filter Filter, page Page) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keyword := strings.ToLower(filter.Keyword)

	var matched []Record
	for _, r := range s.records {
		if r.ContentType != contentType {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(r.Title), keyword) &&
			!strings.Contains(strings.ToLower(r.Excerpt), keyword) {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if !filter.Since.IsZero() && r.CreatedAt.Before(filter.Since) {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if page.Offset > 0 {
		if page.Offset >= len(matched) {
			return []Record{}, nil
		}
		matched = matched[page.Offset:]
	}
	if page.Limit > 0 && len(matched) > page.Limit {
		matched = matched[:page.Limit]
	}

	return matched, nil
}

// Engagement returns interaction counts for the requested keys.
func (s *MemoryStore) Engagement(ctx context.Context, keys []string) (map[string]Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Engagement, len(keys))
	for _, key := range keys {
		if r, ok := s.records[key]; ok {
			out[key] = Engagement{Comments: r.Comments, Votes: r.Votes}
		}
	}
	return out, nil
}

// Interests returns the user's recorded interest topics.
func (s *MemoryStore) Interests(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics, ok := s.interests[userID]
	if !ok || len(topics) == 0 {
		return nil, fmt.Errorf("%w: no interests for user %s", ErrNotFound, userID)
	}
	return append([]string(nil), topics...), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
