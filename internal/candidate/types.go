package candidate

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for candidate validation.
var (
	// ErrEmptyID is returned when a candidate has no identifier.
	ErrEmptyID = errors.New("candidate: empty id")

	// ErrUnknownContentType is returned for a content type outside the known set.
	ErrUnknownContentType = errors.New("candidate: unknown content type")

	// ErrScoreOutOfRange is returned when a raw score falls outside [0,1].
	ErrScoreOutOfRange = errors.New("candidate: score out of range [0,1]")

	// ErrNoSources indicates a candidate with no provenance. Every candidate
	// must record at least the retrieval path that produced it; an empty
	// sources slice after ingestion or fusion is a programming error.
	ErrNoSources = errors.New("candidate: empty sources")
)

// ContentType identifies the kind of content a candidate refers to.
type ContentType string

const (
	ContentTypePost     ContentType = "post"
	ContentTypeComment  ContentType = "comment"
	ContentTypeCategory ContentType = "category"
	ContentTypeUser     ContentType = "user"
	ContentTypeDocument ContentType = "document"
	ContentTypeImage    ContentType = "image"
)

// Valid reports whether the content type is one of the known values.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypePost, ContentTypeComment, ContentTypeCategory,
		ContentTypeUser, ContentTypeDocument, ContentTypeImage:
		return true
	}
	return false
}

// Candidate is a single retrieved content item before final ranking.
//
// The pair (ContentType, ID) is the deduplication key: IDs are opaque and
// unique only within their content type. RawScore is the range-normalized
// similarity score from the originating retrieval path. Sources records
// which expanded query or retrieval path produced the candidate, in the
// order the paths contributed.
type Candidate struct {
	// ID is the opaque content identifier, unique within ContentType.
	ID string

	// ContentType is the kind of content this candidate refers to.
	ContentType ContentType

	// Title is a short display title used in rerank prompts and reasons.
	Title string

	// Excerpt is a short content excerpt sent to the reranker.
	Excerpt string

	// RawScore is the similarity score in [0,1] from the originating path.
	RawScore float64

	// Sources lists the retrieval paths that produced this candidate.
	// Never empty after ingestion.
	Sources []string

	// Timestamp is the creation time of the underlying content. Zero for
	// content types that carry no timestamp (e.g. categories); the recency
	// scorer skips those.
	Timestamp time.Time

	// Category is an optional clustering key for the diversity filter.
	Category string

	// AuthorID is an optional clustering key for the diversity filter.
	AuthorID string

	// Metadata is an opaque payload carried through the pipeline unmodified.
	Metadata map[string]interface{}
}

// Key returns the deduplication key for the candidate.
func (c Candidate) Key() string {
	return string(c.ContentType) + "/" + c.ID
}

// Validate checks the candidate invariants. It is called once at ingestion;
// downstream stages may assume a validated candidate.
func (c Candidate) Validate() error {
	if c.ID == "" {
		return ErrEmptyID
	}
	if !c.ContentType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownContentType, c.ContentType)
	}
	if c.RawScore < 0 || c.RawScore > 1 {
		return fmt.Errorf("%w: %v", ErrScoreOutOfRange, c.RawScore)
	}
	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	return nil
}

// QueryRole classifies an expanded query relative to the original input.
type QueryRole string

const (
	// RolePrimary is the original, unmodified query.
	RolePrimary QueryRole = "primary"

	// RoleSemanticExpansion is a semantic variant of the original query.
	RoleSemanticExpansion QueryRole = "semantic-expansion"

	// RoleCrossModal is a variant targeting a different content modality.
	RoleCrossModal QueryRole = "cross-modal"
)

// ExpandedQuery is one retrieval query derived from the raw input. Expanded
// queries are generated once per request and immutable afterwards.
type ExpandedQuery struct {
	Text string
	Role QueryRole
}

// SourceTag returns the provenance string recorded on candidates retrieved
// for this query.
func (q ExpandedQuery) SourceTag() string {
	return string(q.Role) + ":" + q.Text
}

// RankedResult is a candidate plus its final ranking annotations.
type RankedResult struct {
	Candidate

	// FinalScore is the score after fusion, recency/engagement adjustment
	// and reranking, always in [0,1].
	FinalScore float64

	// DiversityScore in [0,1] records how much this item differed from the
	// items already selected when it was admitted.
	DiversityScore float64

	// Rank is the 1-based position in the output.
	Rank int

	// Reason is a human-readable justification for including the item.
	Reason string

	// Serendipitous marks items promoted by the serendipity injector.
	Serendipitous bool

	// RerankQualityScore is the quality score assigned by the reranker,
	// zero when reranking was skipped.
	RerankQualityScore float64
}
