package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/canonbooks/canon/pkg/models"
)

const (
	TypeBookChanged   = "book_changed"
	TypeSearchStatus  = "search_progress"
	TypeSearchResults = "search_results"

	TopicBooks = "books"
)

// BookChanged is emitted after every successful upsert.
type BookChanged struct {
	BookID            string            `json:"book_id"`
	Slug              string            `json:"slug"`
	Title             string            `json:"title"`
	IsNew             bool              `json:"is_new"`
	Source            string            `json:"source,omitempty"`
	CanonicalImageURL *string           `json:"canonical_image_url,omitempty"`
	ImageLinks        map[string]string `json:"image_links,omitempty"`
}

// Sink receives book change notifications. Implementations must not block the
// caller for long; the upsert path calls it synchronously after commit.
type Sink interface {
	BookChanged(ctx context.Context, evt BookChanged)
}

const (
	ProgressStarting = "STARTING"
	ProgressComplete = "COMPLETE"
	ProgressError    = "ERROR"
)

type SearchProgress struct {
	QueryHash string `json:"query_hash"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

type SearchResultsBatch struct {
	QueryHash    string         `json:"query_hash"`
	Results      []*models.Book `json:"results"`
	Source       string         `json:"source"`
	RunningTotal int            `json:"running_total"`
	IsFinal      bool           `json:"is_final"`
}

// ProgressPublisher receives search progress, keyed by query hash.
type ProgressPublisher interface {
	SearchProgress(ctx context.Context, evt SearchProgress)
	SearchResults(ctx context.Context, evt SearchResultsBatch)
}

// QueryHash normalizes a search query (case and whitespace) and hashes it so
// subscribers can find the progress of a query without echoing it back.
func QueryHash(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}

// SearchTopic is the hub topic carrying progress for a query hash.
func SearchTopic(queryHash string) string {
	return "search:" + queryHash
}

// Nop discards every event.
type Nop struct{}

func (Nop) BookChanged(context.Context, BookChanged)          {}
func (Nop) SearchProgress(context.Context, SearchProgress)    {}
func (Nop) SearchResults(context.Context, SearchResultsBatch) {}
