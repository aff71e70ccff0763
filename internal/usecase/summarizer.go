package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

const (
	defaultChunkSize   = 3
	titleContentRunes  = 2000
	titleMaxTokens     = 100
	summarizerDateForm = "2006-01-02 15:04"
)

const summarySystemPrompt = `Ты опытный журналист и мемолог. Для каждой статьи сделай короткую выжимку (2-3 предложения) о самом важном, придумай до 3 мемов по теме и до 2 шуток.
Отвечай строго JSON-объектом без пояснений:
{"summary": "выжимка", "memes": ["мем 1", "мем 2", "мем 3"], "jokes": ["шутка 1", "шутка 2"]}`

const titleSystemPrompt = `Ты редактор новостей. Придумай короткий информативный заголовок (не длиннее 100 символов) для присланного текста. Ответь только заголовком, без кавычек и пояснений.`

// Placeholders for digests the model could not produce.
const (
	parseFailedSummary = "Не удалось обработать статью"
	callFailedSummary  = "Ошибка при обработке статьи"
)

// ErrEmptyTitle is returned when the model answers a title request with nothing.
var ErrEmptyTitle = errors.New("model returned empty title")

// Summarizer turns articles into digest results through the chat backend.
type Summarizer struct {
	backend   ports.ChatBackend
	params    ports.ChatParams
	chunkSize int
	processed atomic.Int64
	logger    *slog.Logger
	now       func() time.Time
}

// NewSummarizer builds a summarizer. chunkSize bounds how many articles are
// sent to the model at once; chunks run one after another.
func NewSummarizer(backend ports.ChatBackend, params ports.ChatParams, chunkSize int, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Summarizer{
		backend:   backend,
		params:    params,
		chunkSize: chunkSize,
		logger:    logger.With("component", "summarizer"),
		now:       time.Now,
	}
}

// ProcessedCount is the number of articles summarized since start.
func (s *Summarizer) ProcessedCount() int64 {
	return s.processed.Load()
}

// ProcessArticles returns one result per article in input order. Model
// failures never abort the batch; they yield degraded placeholder results.
func (s *Summarizer) ProcessArticles(ctx context.Context, articles []domain.Article) []domain.DigestResult {
	results := make([]domain.DigestResult, len(articles))
	for start := 0; start < len(articles); start += s.chunkSize {
		end := min(start+s.chunkSize, len(articles))
		s.logger.Debug("summarizing chunk", "from", start+1, "to", end, "total", len(articles))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = s.ProcessArticle(ctx, articles[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	s.logger.Info("articles summarized", "count", len(results))
	return results
}

// ProcessArticle summarizes a single article.
func (s *Summarizer) ProcessArticle(ctx context.Context, article domain.Article) domain.DigestResult {
	res := domain.DigestResult{
		ID:          uuid.NewString(),
		ArticleID:   article.ID,
		Source:      article.Source,
		SourceGroup: article.SourceGroup,
		Title:       article.Title,
		URL:         article.URL,
	}
	if res.ArticleID == "" {
		res.ArticleID = uuid.NewString()
	}

	messages := []ports.ChatMessage{
		{Role: ports.RoleSystem, Content: summarySystemPrompt},
		{Role: ports.RoleUser, Content: articlePrompt(article)},
	}

	answer, err := s.backend.Chat(ctx, messages, s.params)
	switch {
	case err != nil:
		s.logger.Error("summarize article", "url", article.URL, "error", err)
		res.Summary, res.Memes, res.Jokes = callFailedSummary, []string{"Ошибка"}, []string{"Попробуйте позже"}
		res.Degraded = true
	default:
		parsed, perr := ParseDigest(answer)
		if perr != nil {
			s.logger.Warn("unparseable model answer", "url", article.URL, "error", perr)
			res.Summary, res.Memes, res.Jokes = parseFailedSummary, []string{"Ошибка обработки"}, []string{"Попробуйте позже"}
			res.Degraded = true
			break
		}
		res.Summary, res.Memes, res.Jokes = parsed.Summary, parsed.Memes, parsed.Jokes
	}

	res.ProcessedAt = s.now().UTC()
	s.processed.Add(1)
	return res
}

// GenerateTitle asks the model for a headline for an untitled article.
func (s *Summarizer) GenerateTitle(ctx context.Context, article domain.Article) (string, error) {
	content := []rune(strings.TrimSpace(article.Content))
	if len(content) > titleContentRunes {
		content = content[:titleContentRunes]
	}

	params := s.params
	params.MaxTokens = titleMaxTokens
	answer, err := s.backend.Chat(ctx, []ports.ChatMessage{
		{Role: ports.RoleSystem, Content: titleSystemPrompt},
		{Role: ports.RoleUser, Content: string(content)},
	}, params)
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}

	title := strings.Trim(strings.TrimSpace(answer), "\"«»'")
	if title == "" {
		return "", ErrEmptyTitle
	}
	return title, nil
}

// Digest is the structured part of a model answer.
type Digest struct {
	Summary string   `json:"summary"`
	Memes   []string `json:"memes"`
	Jokes   []string `json:"jokes"`
}

// ParseDigest extracts the JSON object embedded in a model answer. Memes and
// jokes are truncated to domain.MaxMemes and domain.MaxJokes.
func ParseDigest(answer string) (Digest, error) {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end <= start {
		return Digest{}, errors.New("no json object in answer")
	}

	var raw struct {
		Summary string    `json:"summary"`
		Memes   *[]string `json:"memes"`
		Jokes   *[]string `json:"jokes"`
	}
	if err := json.Unmarshal([]byte(answer[start:end+1]), &raw); err != nil {
		return Digest{}, fmt.Errorf("decode answer: %w", err)
	}
	if strings.TrimSpace(raw.Summary) == "" {
		return Digest{}, errors.New("summary is empty")
	}
	if raw.Memes == nil || raw.Jokes == nil {
		return Digest{}, errors.New("memes and jokes must be arrays")
	}

	memes, jokes := *raw.Memes, *raw.Jokes
	if len(memes) > domain.MaxMemes {
		memes = memes[:domain.MaxMemes]
	}
	if len(jokes) > domain.MaxJokes {
		jokes = jokes[:domain.MaxJokes]
	}
	return Digest{Summary: strings.TrimSpace(raw.Summary), Memes: memes, Jokes: jokes}, nil
}

func articlePrompt(a domain.Article) string {
	published := "неизвестно"
	if !a.PublishedAt.IsZero() {
		published = a.PublishedAt.Format(summarizerDateForm)
	}
	var b strings.Builder
	b.WriteString("Проанализируй следующую статью и создай выжимку с мемами и шутками:\n\n")
	fmt.Fprintf(&b, "Название: %s\n", a.Title)
	fmt.Fprintf(&b, "Источник: %s\n", a.Source)
	fmt.Fprintf(&b, "URL статьи: %s\n", a.URL)
	fmt.Fprintf(&b, "Дата публикации: %s\n", published)
	fmt.Fprintf(&b, "Содержание: %s", a.Content)
	return b.String()
}
