// Package metastore defines the relational metadata store contract consumed
// by the discovery engine, and its Postgres and in-memory implementations.
//
// The engine uses the metadata store for three things only: keyword search
// as a fallback when the similarity backend is unavailable, engagement
// counts for the recency/engagement scorer, and user interest profiles for
// the recommendation path. The store owns the data; the engine never writes
// through this interface.
package metastore

import (
	"context"
	"errors"
	"time"

	"github.com/fernhill/discoveryd/internal/candidate"
)

// Sentinel errors for metadata store operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("metastore: not found")

	// ErrInvalidFilter indicates an unusable filter.
	ErrInvalidFilter = errors.New("metastore: invalid filter")
)

// Record is one content row joined with its engagement counts.
type Record struct {
	ID          string
	ContentType candidate.ContentType
	Title       string
	Excerpt     string
	Category    string
	AuthorID    string
	CreatedAt   time.Time
	Comments    int
	Votes       int
}

// Filter narrows a FindMany query. Zero values mean "no constraint".
type Filter struct {
	// Keyword requires a case-insensitive substring match on title or
	// excerpt. This is the keyword-contains fallback path, not full-text
	// search.
	Keyword string

	// Category restricts results to one category.
	Category string

	// Since restricts results to content created at or after the time.
	Since time.Time
}

// Page bounds a FindMany result set.
type Page struct {
	Offset int
	Limit  int
}

// Engagement holds the interaction counts for one content item.
type Engagement struct {
	Comments int
	Votes    int
}

// Store is the metadata store contract.
type Store interface {
	// FindMany returns records of the given content type matching the
	// filter, newest first.
	FindMany(ctx context.Context, contentType candidate.ContentType, filter Filter, page Page) ([]Record, error)

	// Engagement returns interaction counts keyed by candidate dedup key
	// (contentType/id). Missing keys are simply absent from the map.
	Engagement(ctx context.Context, keys []string) (map[string]Engagement, error)

	// Interests returns the interest topics recorded for a user, most
	// active first. Used to seed the recommendation retrieval queries.
	Interests(ctx context.Context, userID string) ([]string, error)

	// Close releases the underlying connection pool.
	Close() error
}
