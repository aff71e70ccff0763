package ports

import (
	"context"
	"time"

	"NewsDigest/internal/domain"
)

// ArticleStore persists seen articles keyed by URL.
type ArticleStore interface {
	InitSchema(ctx context.Context) error
	ExistsByURL(ctx context.Context, url string) (bool, error)
	// Insert returns nil when the URL is already stored.
	Insert(ctx context.Context, article domain.Article) (*domain.PersistedArticle, error)
	MarkSent(ctx context.Context, url string) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, cutoff time.Time) (domain.ArticleStats, error)
	Ping(ctx context.Context) error
}

// Role of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// ChatMessage is one turn sent to the model backend.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatParams carries sampling settings for a single call.
type ChatParams struct {
	MaxTokens       int
	Temperature     float64
	PresencePenalty float64
	TopP            float64
}

// ChatBackend talks to a language-model completion API.
type ChatBackend interface {
	Chat(ctx context.Context, messages []ChatMessage, params ChatParams) (string, error)
}

// Channel delivers a rendered digest message to one destination.
type Channel interface {
	Name() string
	// Configured reports whether credentials are present; unconfigured channels are skipped.
	Configured() bool
	// MaxMessageLength is the per-message size limit in characters, 0 for unlimited.
	MaxMessageLength() int
	Send(ctx context.Context, message string) error
}

// ContentExtractor fills in article bodies from their web pages.
type ContentExtractor interface {
	Extract(ctx context.Context, pageURL string) (string, error)
}

// Scheduler controls when jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// ArticleSource fans fetches out across source groups.
type ArticleSource interface {
	FetchAll(ctx context.Context, limit int) []domain.Article
	// FetchGroup yields nothing for unknown or disabled groups.
	FetchGroup(ctx context.Context, groupID string, limit int) []domain.Article
	EnabledGroupIDs() []string
	SourcesCount() int
}

// Notifier routes digest results to notification groups.
type Notifier interface {
	// Route delivers a batch spanning several source groups.
	Route(ctx context.Context, results []domain.DigestResult) domain.Dispatch
	SendResultsToMatchingGroups(ctx context.Context, sourceGroup string, results []domain.DigestResult) domain.Dispatch
}
