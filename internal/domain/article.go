package domain

import "time"

// Article is a normalized item produced by a source adapter.
type Article struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	SourceGroup string    `json:"sourceGroup,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	Tags        []string  `json:"tags,omitempty"`
}

// PersistedArticle is the stored history row used for deduplication and delivery tracking.
type PersistedArticle struct {
	ID          int64
	Title       string
	URL         string
	Source      string
	PublishedAt time.Time
	Sent        bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ArticleStats summarizes the persisted history.
type ArticleStats struct {
	Total  int64 `json:"total"`
	Sent   int64 `json:"sent"`
	Unsent int64 `json:"unsent"`
	Old    int64 `json:"old"`
}

const (
	// MaxMemes bounds DigestResult.Memes.
	MaxMemes = 3
	// MaxJokes bounds DigestResult.Jokes.
	MaxJokes = 2
)

// DigestResult is the model-produced digest for one article.
type DigestResult struct {
	ID          string    `json:"id"`
	ArticleID   string    `json:"articleId"`
	Source      string    `json:"source"`
	SourceGroup string    `json:"sourceGroup,omitempty"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary"`
	Memes       []string  `json:"memes"`
	Jokes       []string  `json:"jokes"`
	Degraded    bool      `json:"degraded,omitempty"`
	ProcessedAt time.Time `json:"processedAt"`
}
