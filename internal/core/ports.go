package core

import (
	"context"
)

// LLMClient defines the interface for interacting with LLM services
type LLMClient interface {
	// Complete sends a prompt and returns the raw text of the model's answer
	Complete(ctx context.Context, prompt string) (string, error)
	// Name identifies the model for logging
	Name() string
}

// ReputationClient defines the interface for the artifact reputation service
type ReputationClient interface {
	// SubmitURL queues a URL for analysis and returns the submission id
	SubmitURL(ctx context.Context, url string) (string, error)
	// GetURLVerdict fetches the engine tally for a previous submission
	GetURLVerdict(ctx context.Context, submissionID string) (*ReputationCounts, error)
	// CheckFileHash looks up a file by its SHA-256
	CheckFileHash(ctx context.Context, hash string) (*ReputationCounts, error)
}

// FraudClassifier decides whether an email's text is a CEO-fraud attempt
type FraudClassifier interface {
	Classify(ctx context.Context, subject, body, html string) *FraudResult
}

// Analyzer produces a verdict for one email
type Analyzer interface {
	Analyze(ctx context.Context, req *AnalysisRequest) (*Verdict, error)
}

// URLChecker looks up a single URL outside of any email
type URLChecker interface {
	CheckURL(ctx context.Context, url string) (*URLCheck, error)
}

// Mailbox defines the interface to the mail provider holding the user's messages
type Mailbox interface {
	ListByLabel(ctx context.Context, label string, max int) ([]string, error)
	ListUnread(ctx context.Context, excludeLabels []string, max int) ([]string, error)
	// GetContent returns ErrNotFound when the message does not exist
	GetContent(ctx context.Context, id string) (*AnalysisRequest, error)
	AddLabel(ctx context.Context, id, label string) error
	MarkRead(ctx context.Context, id string) error
}

// CacheRepository defines the interface for caching reputation lookups
type CacheRepository interface {
	// Get retrieves a live cache entry
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry
	Delete(ctx context.Context, key string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}
