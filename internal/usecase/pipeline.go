package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// Sentinel errors of the pipeline lifecycle.
var (
	ErrNotInitialized      = errors.New("pipeline is not initialized")
	ErrMissingCredentials  = errors.New("model credentials are missing")
	ErrAlreadyInitializing = errors.New("pipeline is already initializing")
)

const (
	stateUninitialized int32 = iota
	stateInitializing
	stateReady
)

const allGroups = "all"

// Metrics observes pipeline progress.
type Metrics interface {
	ArticlesFetched(group string, n int)
	ArticlesDuplicate(group string, n int)
	ArticlesPersisted(group string, n int)
	DigestsProduced(ok, degraded int)
	RunFinished(group string, took time.Duration, err error)
	ArticlesCleaned(n int64)
}

type nopMetrics struct{}

func (nopMetrics) ArticlesFetched(string, int) {}
func (nopMetrics) ArticlesDuplicate(string, int) {}
func (nopMetrics) ArticlesPersisted(string, int) {}
func (nopMetrics) DigestsProduced(int, int) {}
func (nopMetrics) RunFinished(string, time.Duration, error) {}
func (nopMetrics) ArticlesCleaned(int64) {}

// PipelineConfig carries the tunables of the orchestrator.
type PipelineConfig struct {
	Model             string
	APIKey            string
	DefaultLimit      int
	RetentionDays     int
	EnrichTimeout     time.Duration
	EnrichConcurrency int
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
// Notifier, Extractor and Metrics are optional.
type PipelineDeps struct {
	Sources    ports.ArticleSource
	Store      ports.ArticleStore
	Summarizer *Summarizer
	Notifier   ports.Notifier
	Extractor  ports.ContentExtractor
	Metrics    Metrics
	Config     PipelineConfig
	Logger     *slog.Logger
}

// Pipeline implements the fetch, dedupe, summarize and notify workflow.
type Pipeline struct {
	sources    ports.ArticleSource
	store      ports.ArticleStore
	summarizer *Summarizer
	notifier   ports.Notifier
	extractor  ports.ContentExtractor
	metrics    Metrics
	cfg        PipelineConfig
	logger     *slog.Logger
	state      atomic.Int32
	now        func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	cfg := deps.Config
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = 4
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = 20 * time.Second
	}
	return &Pipeline{
		sources:    deps.Sources,
		store:      deps.Store,
		summarizer: deps.Summarizer,
		notifier:   deps.Notifier,
		extractor:  deps.Extractor,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger.With("component", "pipeline"),
		now:        time.Now,
	}
}

// Initialized reports whether runs are accepted.
func (p *Pipeline) Initialized() bool {
	return p.state.Load() == stateReady
}

// EnabledGroupIDs lists the source groups a scheduled firing walks through.
func (p *Pipeline) EnabledGroupIDs() []string {
	return p.sources.EnabledGroupIDs()
}

// Initialize checks credentials, prepares the schema, sweeps old rows and
// runs every enabled source group once. Calling it on a ready pipeline is a no-op.
func (p *Pipeline) Initialize(ctx context.Context) error {
	if !p.state.CompareAndSwap(stateUninitialized, stateInitializing) {
		if p.state.Load() == stateReady {
			return nil
		}
		return ErrAlreadyInitializing
	}

	if err := p.initialize(ctx); err != nil {
		p.state.Store(stateUninitialized)
		return err
	}
	p.state.Store(stateReady)
	p.logger.Info("pipeline ready")
	return nil
}

func (p *Pipeline) initialize(ctx context.Context) error {
	if strings.TrimSpace(p.cfg.APIKey) == "" || strings.TrimSpace(p.cfg.Model) == "" {
		return ErrMissingCredentials
	}
	if err := p.store.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	if _, err := p.cleanup(ctx, p.cfg.RetentionDays); err != nil {
		return err
	}

	for _, id := range p.sources.EnabledGroupIDs() {
		results, err := p.run(ctx, p.cfg.DefaultLimit, id)
		if err != nil {
			return fmt.Errorf("bootstrap group %s: %w", id, err)
		}
		p.logger.Info("bootstrap run finished", "group", id, "count", len(results))
	}
	return nil
}

// Run executes one pass over every enabled group, or over groupID alone when set.
// limit <= 0 selects the configured default.
func (p *Pipeline) Run(ctx context.Context, limit int, groupID string) ([]domain.DigestResult, error) {
	if !p.Initialized() {
		return nil, ErrNotInitialized
	}
	return p.run(ctx, limit, groupID)
}

// RunGroup is Run scoped to one source group with the default limit.
func (p *Pipeline) RunGroup(ctx context.Context, groupID string) ([]domain.DigestResult, error) {
	return p.Run(ctx, 0, groupID)
}

func (p *Pipeline) run(ctx context.Context, limit int, groupID string) (results []domain.DigestResult, err error) {
	if limit <= 0 {
		limit = p.cfg.DefaultLimit
	}
	label := groupID
	if label == "" {
		label = allGroups
	}
	log := p.logger.With("group", label)
	started := p.now()
	defer func() { p.metrics.RunFinished(label, p.now().Sub(started), err) }()

	var articles []domain.Article
	if groupID == "" {
		articles = p.sources.FetchAll(ctx, limit)
	} else {
		articles = p.sources.FetchGroup(ctx, groupID, limit)
	}
	p.metrics.ArticlesFetched(label, len(articles))
	log.Info("articles fetched", "count", len(articles))
	if len(articles) == 0 {
		return nil, nil
	}

	articles = p.backfillTitles(ctx, articles)

	unique, err := p.dedupe(ctx, articles, label)
	if err != nil {
		return nil, err
	}
	if len(unique) == 0 {
		log.Info("no new articles")
		return nil, nil
	}

	p.enrich(ctx, unique)

	results = p.summarizer.ProcessArticles(ctx, unique)
	degraded := 0
	for _, r := range results {
		if r.Degraded {
			degraded++
		}
	}
	p.metrics.DigestsProduced(len(results)-degraded, degraded)

	if err := p.notify(ctx, groupID, results); err != nil {
		return results, err
	}
	log.Info("run finished", "digests", len(results), "degraded", degraded)
	return results, nil
}

// backfillTitles never fails: a title the model cannot produce is replaced by
// a placeholder built from the source name and publish date.
func (p *Pipeline) backfillTitles(ctx context.Context, articles []domain.Article) []domain.Article {
	out := make([]domain.Article, len(articles))
	for i, a := range articles {
		if strings.TrimSpace(a.Title) == "" {
			title, err := p.summarizer.GenerateTitle(ctx, a)
			if err != nil {
				p.logger.Warn("title generation failed, using placeholder", "url", a.URL, "error", err)
				title = FallbackTitle(a, p.now())
			}
			a.Title = title
		}
		out[i] = a
	}
	return out
}

// FallbackTitle is the deterministic title of an article the model could not name.
func FallbackTitle(a domain.Article, now time.Time) string {
	day := a.PublishedAt
	if day.IsZero() {
		day = now
	}
	return fmt.Sprintf("Post from %s %s", a.Source, day.Format("2006-01-02"))
}

func (p *Pipeline) dedupe(ctx context.Context, articles []domain.Article, label string) ([]domain.Article, error) {
	unique := make([]domain.Article, 0, len(articles))
	duplicates := 0
	for _, a := range articles {
		exists, err := p.store.ExistsByURL(ctx, a.URL)
		if err != nil {
			return nil, fmt.Errorf("check article %s: %w", a.URL, err)
		}
		if exists {
			p.logger.Debug("duplicate article skipped", "url", a.URL)
			duplicates++
			continue
		}
		row, err := p.store.Insert(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("insert article %s: %w", a.URL, err)
		}
		if row == nil {
			p.logger.Debug("article inserted concurrently, skipped", "url", a.URL)
			duplicates++
			continue
		}
		a.ID = strconv.FormatInt(row.ID, 10)
		unique = append(unique, a)
	}
	p.metrics.ArticlesDuplicate(label, duplicates)
	p.metrics.ArticlesPersisted(label, len(unique))
	p.logger.Info("articles deduplicated", "group", label, "unique", len(unique), "duplicates", duplicates)
	return unique, nil
}

// enrich fills empty bodies in place. Extraction failures keep the article unchanged.
func (p *Pipeline) enrich(ctx context.Context, articles []domain.Article) {
	if p.extractor == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.EnrichConcurrency)
	for i := range articles {
		if strings.TrimSpace(articles[i].Content) != "" || articles[i].URL == "" {
			continue
		}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, p.cfg.EnrichTimeout)
			defer cancel()
			text, err := p.extractor.Extract(cctx, articles[i].URL)
			if err != nil {
				p.logger.Warn("content extraction failed", "url", articles[i].URL, "error", err)
				return nil
			}
			articles[i].Content = text
			return nil
		})
	}
	_ = g.Wait()
}

// notify dispatches results and marks every attempted URL as sent. Delivery
// failures are logged by the router; only store failures are returned.
func (p *Pipeline) notify(ctx context.Context, groupID string, results []domain.DigestResult) error {
	if p.notifier == nil || len(results) == 0 {
		return nil
	}

	var report domain.Dispatch
	if groupID == "" {
		report = p.notifier.Route(ctx, results)
	} else {
		report = p.notifier.SendResultsToMatchingGroups(ctx, groupID, results)
	}
	if len(report.Failed) > 0 {
		p.logger.Error("notification groups failed", "failed", report.Failed, "delivered", report.Delivered)
	}
	if report.Dropped > 0 {
		p.logger.Warn("results not delivered to any group", "count", report.Dropped)
	}

	marked := 0
	for _, url := range report.Attempted {
		ok, err := p.store.MarkSent(ctx, url)
		if err != nil {
			return fmt.Errorf("mark sent %s: %w", url, err)
		}
		if ok {
			marked++
		}
	}
	p.logger.Info("articles marked sent", "count", marked)
	return nil
}

// CleanupOldArticles deletes rows published more than days ago or undated.
// days <= 0 selects the retention window.
func (p *Pipeline) CleanupOldArticles(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = p.cfg.RetentionDays
	}
	return p.cleanup(ctx, days)
}

func (p *Pipeline) cleanup(ctx context.Context, days int) (int64, error) {
	cutoff := p.now().Add(-time.Duration(days) * 24 * time.Hour)
	deleted, err := p.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old articles: %w", err)
	}
	p.metrics.ArticlesCleaned(deleted)
	p.logger.Info("old articles cleaned", "days", days, "deleted", deleted)
	return deleted, nil
}

// Statistics reports process counters and, once ready, store totals.
func (p *Pipeline) Statistics(ctx context.Context) domain.Statistics {
	stats := domain.Statistics{
		TotalArticlesProcessed: p.summarizer.ProcessedCount(),
		SourcesCount:           p.sources.SourcesCount(),
		GroupsCount:            len(p.sources.EnabledGroupIDs()),
		Initialized:            p.Initialized(),
	}
	if !stats.Initialized {
		return stats
	}
	cutoff := p.now().Add(-time.Duration(p.cfg.RetentionDays) * 24 * time.Hour)
	st, err := p.store.Stats(ctx, cutoff)
	if err != nil {
		p.logger.Error("load store stats", "error", err)
		return stats
	}
	stats.Store = &st
	return stats
}

// Health checks sources, model credentials and the store.
func (p *Pipeline) Health(ctx context.Context) domain.Health {
	var h domain.Health

	if n := p.sources.SourcesCount(); n > 0 {
		h.Sources = true
		h.Details = append(h.Details, fmt.Sprintf("sources: %d configured", n))
	} else {
		h.Details = append(h.Details, "sources: none enabled")
	}

	if strings.TrimSpace(p.cfg.APIKey) != "" && strings.TrimSpace(p.cfg.Model) != "" {
		h.Model = true
		h.Details = append(h.Details, "model: "+p.cfg.Model)
	} else {
		h.Details = append(h.Details, "model: missing credentials")
	}

	if err := p.store.Ping(ctx); err != nil {
		h.Details = append(h.Details, "store: "+err.Error())
	} else {
		h.Store = true
		h.Details = append(h.Details, "store: ok")
	}

	initialized := p.Initialized()
	if !initialized {
		h.Details = append(h.Details, "pipeline: not initialized")
	}
	h.Healthy = h.Sources && h.Model && h.Store && initialized
	return h
}
