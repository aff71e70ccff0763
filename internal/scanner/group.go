package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
)

// FailureRecorder counts adapters that failed to fetch or parse.
type FailureRecorder interface {
	SourceFailed(group, source string)
}

type nopRecorder struct{}

func (nopRecorder) SourceFailed(string, string) {}

type member struct {
	name    string
	limit   int
	scanner Scanner
}

// Group fetches from every member adapter concurrently and stamps results
// with the adapter name and the group id.
type Group struct {
	id      string
	name    string
	enabled bool
	members []member
	logger  *slog.Logger
	metrics FailureRecorder
}

// GroupOption customizes a Group.
type GroupOption func(*Group)

// WithFailureRecorder reports adapter failures to r.
func WithFailureRecorder(r FailureRecorder) GroupOption {
	return func(g *Group) {
		if r != nil {
			g.metrics = r
		}
	}
}

// NewGroup builds a group from config. Members with an unknown type or an
// invalid config are logged and skipped; the group is still usable.
func NewGroup(cfg config.SourceGroupConfig, factory *Factory, logger *slog.Logger, opts ...GroupOption) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}

	g := &Group{
		id:      cfg.ID,
		name:    name,
		enabled: cfg.Enabled,
		logger:  logger.With("group", cfg.ID),
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, sc := range cfg.Sources {
		adapter, err := factory.Build(sc)
		if err != nil {
			g.logger.Warn("skip source", "source", sc.Name, "type", sc.Type, "error", err)
			continue
		}
		g.members = append(g.members, member{name: sc.Name, limit: sc.Limit, scanner: adapter})
	}

	g.logger.Debug("source group ready", "sources", len(g.members), "enabled", g.enabled)
	return g
}

// ID returns the group identifier used for notification routing.
func (g *Group) ID() string { return g.id }

// Name returns the display name.
func (g *Group) Name() string { return g.name }

// Enabled reports whether the group takes part in runs.
func (g *Group) Enabled() bool { return g.enabled }

// Sources returns member adapter names in config order.
func (g *Group) Sources() []string {
	names := make([]string, 0, len(g.members))
	for _, m := range g.members {
		names = append(names, m.name)
	}
	return names
}

// Fetch runs all members concurrently. A failing member is logged and
// contributes nothing; an empty result is not an error.
func (g *Group) Fetch(ctx context.Context, limit int) []domain.Article {
	perMember := make([][]domain.Article, len(g.members))

	var wg sync.WaitGroup
	for i, m := range g.members {
		wg.Go(func() {
			perMember[i] = g.fetchMember(ctx, m, limit)
		})
	}
	wg.Wait()

	var articles []domain.Article
	for _, batch := range perMember {
		articles = append(articles, batch...)
	}

	g.logger.Info("fetched source group", "count", len(articles), "sources", len(g.members))
	return articles
}

func (g *Group) fetchMember(ctx context.Context, m member, limit int) (articles []domain.Article) {
	defer func() {
		if r := recover(); r != nil {
			g.metrics.SourceFailed(g.id, m.name)
			g.logger.Error("source panicked", "source", m.name, "panic", r)
			articles = nil
		}
	}()

	effective := limit
	if m.limit > 0 {
		effective = m.limit
	}

	raw, err := m.scanner.Scan(ctx, effective)
	if err != nil {
		g.metrics.SourceFailed(g.id, m.name)
		g.logger.Error("fetch source", "source", m.name, "error", err)
		return nil
	}

	articles, err := ParsePayload(raw)
	if err != nil {
		g.metrics.SourceFailed(g.id, m.name)
		g.logger.Error("parse source payload", "source", m.name, "error", err)
		return nil
	}

	if effective > 0 && len(articles) > effective {
		articles = articles[:effective]
	}
	for i := range articles {
		articles[i].Source = m.name
		articles[i].SourceGroup = g.id
	}

	g.logger.Debug("fetched source", "source", m.name, "count", len(articles))
	return articles
}

// ParsePayload decodes an adapter payload: a JSON array of articles, a single
// article object, or nothing at all.
func ParsePayload(raw []byte) ([]domain.Article, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var articles []domain.Article
		if err := json.Unmarshal(trimmed, &articles); err != nil {
			return nil, fmt.Errorf("decode article list: %w", err)
		}
		return articles, nil
	}

	var article domain.Article
	if err := json.Unmarshal(trimmed, &article); err != nil {
		return nil, fmt.Errorf("decode article: %w", err)
	}
	return []domain.Article{article}, nil
}
