package core

import (
	"sort"
	"time"
)

// Header names projected from the remote store. Presence of a key in
// Message.Headers means the header was present on the wire, even with an
// empty value.
const (
	HeaderListUnsubscribe = "List-Unsubscribe"
	HeaderPrecedence      = "Precedence"
	HeaderXMailer         = "X-Mailer"
)

// KeywordFlagged marks a message as human-curated "keep"
const KeywordFlagged = "$flagged"

// Message is a read-only snapshot of a remote mail message. The only
// mutation ever applied is folder membership or keyword flags, and both go
// through the mailbox client in bulk.
type Message struct {
	ID         string
	ThreadID   string
	Sender     string
	Subject    string
	Preview    string
	Headers    map[string]string
	ReceivedAt string
	Keywords   map[string]bool
	MailboxIDs map[string]bool
}

// Flagged reports whether the message carries the $flagged keyword
func (m *Message) Flagged() bool {
	return m.Keywords[KeywordFlagged]
}

// HasHeader reports whether the named header was present on the message
func (m *Message) HasHeader(name string) bool {
	_, ok := m.Headers[name]
	return ok
}

// DisplaySender returns the sender address, or "unknown" for display when
// the from field was absent
func (m *Message) DisplaySender() string {
	if m.Sender == "" {
		return "unknown"
	}
	return m.Sender
}

// Category is a triage category assigned by the categorical backend
type Category string

const (
	CategoryActionNeeded Category = "action_needed"
	CategoryFYI          Category = "fyi"
	CategoryNoise        Category = "noise"
)

// NormalizeCategory coerces a raw model output to a known category.
// Anything outside the enumeration becomes fyi so that a garbled response
// never causes an archive.
func NormalizeCategory(raw string) Category {
	switch Category(raw) {
	case CategoryActionNeeded, CategoryFYI, CategoryNoise:
		return Category(raw)
	default:
		return CategoryFYI
	}
}

// Verdict is the per-message output of a triage policy. Category is set by
// the categorical backend, Probability by the probabilistic one.
type Verdict struct {
	Message     *Message
	Category    Category
	Probability float64
	Reason      string
}

// Evaluation assigns every input message to exactly one bucket
type Evaluation struct {
	// Archive holds messages the policy deems safe to archive
	Archive []Verdict
	// Review holds messages to keep and surface for human attention
	Review []Verdict
	// Uncertain holds messages below archive confidence but above the
	// review floor (probabilistic backend only)
	Uncertain []Verdict
}

// Size returns the total number of evaluated messages
func (e *Evaluation) Size() int {
	return len(e.Archive) + len(e.Review) + len(e.Uncertain)
}

// ScoredMessage pairs a message with its transactional probability
type ScoredMessage struct {
	Message     *Message
	Probability float64
}

// ScoreSet is an ordered collection of scored messages
type ScoreSet []ScoredMessage

// Actionable returns the subset with probability >= threshold, sorted by
// probability descending. Ties keep their original order.
func (s ScoreSet) Actionable(threshold float64) ScoreSet {
	out := make(ScoreSet, 0, len(s))
	for _, sm := range s {
		if sm.Probability >= threshold {
			out = append(out, sm)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	return out
}

// Uncertain returns the subset with low <= probability < high, sorted by
// probability descending. Ties keep their original order.
func (s ScoreSet) Uncertain(low, high float64) ScoreSet {
	out := make(ScoreSet, 0, len(s))
	for _, sm := range s {
		if sm.Probability >= low && sm.Probability < high {
			out = append(out, sm)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	return out
}

// CacheEntry is a cached categorical verdict
type CacheEntry struct {
	Key      string
	Category Category
	Reason   string
	CachedAt time.Time
}

// CacheKey builds the cache key for a model/message pair
func CacheKey(model, messageID string) string {
	return model + ":" + messageID
}
