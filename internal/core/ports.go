package core

import (
	"context"
)

// Filter is an AND conjunction of atomic query predicates. Zero-valued
// fields are omitted from the query.
type Filter struct {
	// InMailbox restricts the query to one folder
	InMailbox string
	// HasKeyword restricts the query to messages carrying a keyword
	HasKeyword string
}

// Mailbox defines paginated access to a remote mail store and bulk
// mutation of its state
type Mailbox interface {
	// MailboxIDByRole resolves a well-known folder by its server role tag,
	// then by case-insensitive name, creating the folder if neither matches
	MailboxIDByRole(ctx context.Context, role string) (string, error)

	// QueryIDs returns up to limit message ids matching filter, newest
	// first, with no duplicates. A non-positive limit means unbounded.
	QueryIDs(ctx context.Context, filter Filter, limit int) ([]string, error)

	// FetchMessages fetches the given ids in chunks. The returned order is
	// the chunk-concatenation order, not necessarily the input order;
	// callers may only rely on the id set.
	FetchMessages(ctx context.Context, ids []string) ([]*Message, error)

	// MoveMessages moves ids into the destination folder in fixed-size
	// batches. If the server rejects any id the call fails with a
	// MutationError; batches already applied are not rolled back.
	MoveMessages(ctx context.Context, ids []string, destMailboxID string) error

	// SetFlag sets or clears the $flagged keyword on ids, with the same
	// batching and failure policy as MoveMessages.
	SetFlag(ctx context.Context, ids []string, flagged bool) error
}

// LLMResult is the structured verdict returned by an LLM provider
type LLMResult struct {
	Category Category
	Reason   string
}

// LLMClient defines the interface for categorical LLM providers
type LLMClient interface {
	// ClassifyMessage assigns a triage category to a single message
	ClassifyMessage(ctx context.Context, msg *Message) (*LLMResult, error)

	// ModelID identifies the underlying model, used for cache keying
	ModelID() string
}

// Scorer defines the interface for the probabilistic backend: it maps
// feature texts to transactional probabilities in [0,1]
type Scorer interface {
	// ScoreFeatures returns one probability per input feature text
	ScoreFeatures(features []string) ([]float64, error)

	// ModelID identifies the trained model artifact
	ModelID() string
}

// TriagePolicy assigns every input message to exactly one Evaluation
// bucket. The orchestrator is agnostic to which backend implements it.
// A backend failure is fatal for the whole run; no partial results.
type TriagePolicy interface {
	Evaluate(ctx context.Context, msgs []*Message) (*Evaluation, error)
}

// CacheRepository defines the interface for caching categorical verdicts.
// Entries are keyed "<model>:<messageId>" and never expire: a verdict for
// an immutable message stays valid for that model.
type CacheRepository interface {
	// Get retrieves a cached entry, returning (nil, nil) on a miss
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Close releases resources and flushes pending writes
	Close() error
}
