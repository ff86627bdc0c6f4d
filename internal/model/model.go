// Package model defines the domain types used across the application.
package model

import "time"

// Block identifies one of the three keyword categories a message is
// checked against.
type Block string

// Supported keyword blocks.
const (
	BlockTitle    Block = "title"
	BlockProfile  Block = "profile"
	BlockIndustry Block = "industry"
)

// SessionState is the lifecycle state of a scan session.
type SessionState string

// Scan session states.
const (
	StateIdle      SessionState = "idle"
	StateRunning   SessionState = "running"
	StateCompleted SessionState = "completed"
	StateCanceled  SessionState = "canceled"
	StateFailed    SessionState = "failed"
)

// SortOrder controls how the final result set is ordered by message date.
type SortOrder string

// Supported sort orders.
const (
	SortNewestFirst SortOrder = "newest_first"
	SortOldestFirst SortOrder = "oldest_first"
)

// Message is a single message fetched from a source. It is read-only:
// fetched once per scan and never mutated.
type Message struct {
	ID          int64
	Link        string
	Text        string
	PublishedAt time.Time
	Source      string
}

// MatchResult is the outcome of evaluating one message against the
// configured keyword blocks and exclusions.
type MatchResult struct {
	Relevant bool
	Excluded bool

	// Score counts the total matched terms across all blocks.
	// Display only, never used for ranking.
	Score int

	TitleTerms     []string
	ProfileTerms   []string
	IndustryTerms  []string
	ExclusionTerms []string
}

// MatchRecord is one relevant message with its match details and the
// ban state joined from the ban registry.
type MatchRecord struct {
	Message Message
	Match   MatchResult
	Banned  bool
}

// Warning records a non-fatal per-source problem encountered during a scan.
type Warning struct {
	Source string
	Reason string
}

// Report is the final outcome of a scan session. It is produced for every
// terminal state: on cancellation and failure it carries whatever records
// and warnings were accumulated so far.
type Report struct {
	State           SessionState
	ScannedSources  int
	TotalSources    int
	ScannedMessages int
	Records         []MatchRecord
	Warnings        []Warning
}
