package scanner

import (
	"context"
	"log/slog"
	"sync"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// Registry owns every source group and fans fetches out across them.
type Registry struct {
	groups []*Group
	byID   map[string]*Group
	logger *slog.Logger
}

var _ ports.ArticleSource = (*Registry)(nil)

// NewRegistry wires prebuilt groups. Later duplicates of an id are ignored.
func NewRegistry(logger *slog.Logger, groups ...*Group) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{byID: make(map[string]*Group, len(groups)), logger: logger}
	for _, g := range groups {
		if _, dup := r.byID[g.ID()]; dup {
			logger.Warn("duplicate source group ignored", "group", g.ID())
			continue
		}
		r.byID[g.ID()] = g
		r.groups = append(r.groups, g)
	}
	return r
}

// BuildRegistry constructs one Group per configured group, enabled or not.
func BuildRegistry(cfg config.SourcesConfig, factory *Factory, logger *slog.Logger, opts ...GroupOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	groups := make([]*Group, 0, len(cfg.Groups))
	for _, gc := range cfg.Groups {
		groups = append(groups, NewGroup(gc, factory, logger, opts...))
	}
	return NewRegistry(logger, groups...)
}

// Groups returns all groups in config order.
func (r *Registry) Groups() []*Group {
	return append([]*Group(nil), r.groups...)
}

// EnabledGroups returns the enabled groups in config order.
func (r *Registry) EnabledGroups() []*Group {
	enabled := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		if g.Enabled() {
			enabled = append(enabled, g)
		}
	}
	return enabled
}

// Group looks a group up by id.
func (r *Registry) Group(id string) (*Group, bool) {
	g, ok := r.byID[id]
	return g, ok
}

// SourcesCount counts adapters across enabled groups.
func (r *Registry) SourcesCount() int {
	total := 0
	for _, g := range r.EnabledGroups() {
		total += len(g.members)
	}
	return total
}

// FetchAll fetches every enabled group concurrently.
func (r *Registry) FetchAll(ctx context.Context, limit int) []domain.Article {
	enabled := r.EnabledGroups()
	perGroup := make([][]domain.Article, len(enabled))

	var wg sync.WaitGroup
	for i, g := range enabled {
		wg.Go(func() {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("source group panicked", "group", g.ID(), "panic", p)
				}
			}()
			perGroup[i] = g.Fetch(ctx, limit)
		})
	}
	wg.Wait()

	var articles []domain.Article
	for _, batch := range perGroup {
		articles = append(articles, batch...)
	}
	r.logger.Info("fetched all source groups", "groups", len(enabled), "count", len(articles))
	return articles
}

// FetchGroup fetches one group. Unknown or disabled ids yield nothing and a warning.
func (r *Registry) FetchGroup(ctx context.Context, id string, limit int) []domain.Article {
	g, ok := r.byID[id]
	if !ok {
		r.logger.Warn("source group not found", "group", id)
		return nil
	}
	if !g.Enabled() {
		r.logger.Warn("source group disabled", "group", id)
		return nil
	}
	return g.Fetch(ctx, limit)
}

// EnabledGroupIDs returns ids of enabled groups in config order.
func (r *Registry) EnabledGroupIDs() []string {
	ids := make([]string, 0, len(r.groups))
	for _, g := range r.EnabledGroups() {
		ids = append(ids, g.ID())
	}
	return ids
}
