package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

const okAnswer = `Вот ответ: {"summary": "коротко", "memes": ["m1","m2","m3","m4"], "jokes": ["j1","j2","j3"]} конец`

func silent() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBackend struct {
	summary func(user string) (string, error)
	title   func(user string) (string, error)

	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeBackend) Chat(_ context.Context, messages []ports.ChatMessage, _ ports.ChatParams) (string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	user := messages[len(messages)-1].Content
	if messages[0].Content == titleSystemPrompt {
		if f.title == nil {
			return "", errors.New("no title")
		}
		return f.title(user)
	}
	if f.summary == nil {
		return okAnswer, nil
	}
	return f.summary(user)
}

type fakeSource struct {
	groups   map[string][]domain.Article
	order    []string
	fetchAll atomic.Int32
}

func (f *fakeSource) FetchAll(_ context.Context, _ int) []domain.Article {
	f.fetchAll.Add(1)
	var out []domain.Article
	for _, id := range f.order {
		out = append(out, f.groups[id]...)
	}
	return out
}

func (f *fakeSource) FetchGroup(_ context.Context, id string, _ int) []domain.Article {
	return append([]domain.Article(nil), f.groups[id]...)
}

func (f *fakeSource) EnabledGroupIDs() []string { return f.order }

func (f *fakeSource) SourcesCount() int { return len(f.order) }

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]*domain.PersistedArticle
	schema    int
	insertErr error
	cutoffs   []time.Time
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*domain.PersistedArticle{}}
}

func (s *fakeStore) InitSchema(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema++
	return nil
}

func (s *fakeStore) ExistsByURL(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[url]
	return ok, nil
}

func (s *fakeStore) Insert(_ context.Context, a domain.Article) (*domain.PersistedArticle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	if _, ok := s.rows[a.URL]; ok {
		return nil, nil
	}
	row := &domain.PersistedArticle{ID: int64(len(s.rows) + 1), Title: a.Title, URL: a.URL, Source: a.Source}
	s.rows[a.URL] = row
	return row, nil
}

func (s *fakeStore) MarkSent(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[url]
	if !ok || row.Sent {
		return false, nil
	}
	row.Sent = true
	return true, nil
}

func (s *fakeStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, cutoff)
	return 2, nil
}

func (s *fakeStore) Stats(context.Context, time.Time) (domain.ArticleStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.ArticleStats{Total: int64(len(s.rows))}
	for _, r := range s.rows {
		if r.Sent {
			st.Sent++
		} else {
			st.Unsent++
		}
	}
	return st, nil
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) row(url string) *domain.PersistedArticle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[url]
}

type fakeNotifier struct {
	mu      sync.Mutex
	routed  [][]domain.DigestResult
	matched map[string][]domain.DigestResult
	drop    bool
}

func (n *fakeNotifier) Route(_ context.Context, results []domain.DigestResult) domain.Dispatch {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routed = append(n.routed, results)
	return n.report(results)
}

func (n *fakeNotifier) SendResultsToMatchingGroups(_ context.Context, group string, results []domain.DigestResult) domain.Dispatch {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.matched == nil {
		n.matched = map[string][]domain.DigestResult{}
	}
	n.matched[group] = append(n.matched[group], results...)
	return n.report(results)
}

func (n *fakeNotifier) report(results []domain.DigestResult) domain.Dispatch {
	if n.drop {
		return domain.Dispatch{Dropped: len(results)}
	}
	d := domain.Dispatch{Delivered: []string{"ops"}}
	for _, r := range results {
		d.Attempted = append(d.Attempted, r.URL)
	}
	return d
}

func article(group, url string) domain.Article {
	return domain.Article{
		Title:       "title " + url,
		Content:     "body",
		URL:         url,
		Source:      "src",
		SourceGroup: group,
		PublishedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

type harness struct {
	pipeline *Pipeline
	source   *fakeSource
	store    *fakeStore
	backend  *fakeBackend
	notifier *fakeNotifier
}

func newHarness(t *testing.T, source *fakeSource) *harness {
	t.Helper()
	h := &harness{
		source:   source,
		store:    newFakeStore(),
		backend:  &fakeBackend{},
		notifier: &fakeNotifier{},
	}
	h.pipeline = NewPipeline(PipelineDeps{
		Sources:    source,
		Store:      h.store,
		Summarizer: NewSummarizer(h.backend, ports.ChatParams{MaxTokens: 500}, 3, silent()),
		Notifier:   h.notifier,
		Config:     PipelineConfig{Model: "m", APIKey: "k", RetentionDays: 7},
		Logger:     silent(),
	})
	return h
}

func TestParseDigestTruncatesAndExtracts(t *testing.T) {
	d, err := ParseDigest(okAnswer)
	require.NoError(t, err)
	assert.Equal(t, "коротко", d.Summary)
	assert.Equal(t, []string{"m1", "m2", "m3"}, d.Memes)
	assert.Equal(t, []string{"j1", "j2"}, d.Jokes)
}

func TestParseDigestRejectsInvalidAnswers(t *testing.T) {
	for name, answer := range map[string]string{
		"no object":     "просто текст",
		"empty summary": `{"summary": " ", "memes": [], "jokes": []}`,
		"memes missing": `{"summary": "s", "jokes": []}`,
		"jokes not arr": `{"summary": "s", "memes": [], "jokes": "j"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDigest(answer)
			assert.Error(t, err)
		})
	}
}

func TestProcessArticlesKeepsOrderAndBoundsConcurrency(t *testing.T) {
	backend := &fakeBackend{delay: 10 * time.Millisecond}
	s := NewSummarizer(backend, ports.ChatParams{}, 3, silent())

	var articles []domain.Article
	for _, u := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		articles = append(articles, article("g", "https://x/"+u))
	}

	results := s.ProcessArticles(context.Background(), articles)
	require.Len(t, results, len(articles))
	for i, r := range results {
		assert.Equal(t, articles[i].URL, r.URL)
		assert.NotEmpty(t, r.ID)
		assert.LessOrEqual(t, len(r.Memes), domain.MaxMemes)
		assert.LessOrEqual(t, len(r.Jokes), domain.MaxJokes)
	}
	assert.LessOrEqual(t, backend.peak.Load(), int32(3))
	assert.Equal(t, int64(7), s.ProcessedCount())
}

func TestProcessArticleDegradesOnFailures(t *testing.T) {
	backend := &fakeBackend{summary: func(user string) (string, error) {
		if strings.Contains(user, "https://x/bad-json") {
			return "nothing here", nil
		}
		return "", errors.New("upstream down")
	}}
	s := NewSummarizer(backend, ports.ChatParams{}, 2, silent())

	results := s.ProcessArticles(context.Background(), []domain.Article{
		article("g", "https://x/bad-json"),
		article("g", "https://x/down"),
	})
	require.Len(t, results, 2)

	assert.True(t, results[0].Degraded)
	assert.Equal(t, parseFailedSummary, results[0].Summary)
	assert.Equal(t, []string{"Ошибка обработки"}, results[0].Memes)

	assert.True(t, results[1].Degraded)
	assert.Equal(t, callFailedSummary, results[1].Summary)
	assert.Equal(t, []string{"Попробуйте позже"}, results[1].Jokes)
}

func TestGenerateTitle(t *testing.T) {
	backend := &fakeBackend{title: func(string) (string, error) { return ` "Новый релиз" `, nil }}
	s := NewSummarizer(backend, ports.ChatParams{}, 3, silent())

	title, err := s.GenerateTitle(context.Background(), domain.Article{Content: "text"})
	require.NoError(t, err)
	assert.Equal(t, "Новый релиз", title)

	backend.title = func(string) (string, error) { return "  ", nil }
	_, err = s.GenerateTitle(context.Background(), domain.Article{Content: "text"})
	assert.ErrorIs(t, err, ErrEmptyTitle)
}

func TestRunBeforeInitialize(t *testing.T) {
	h := newHarness(t, &fakeSource{order: []string{"tech"}})
	_, err := h.pipeline.Run(context.Background(), 0, "")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Zero(t, h.source.fetchAll.Load())
	assert.Empty(t, h.store.rows)
	assert.Empty(t, h.notifier.routed)
}

func TestRunDegradesOnlyMalformedAnswer(t *testing.T) {
	h := newHarness(t, &fakeSource{order: []string{"tech"}})
	h.pipeline.state.Store(stateReady)

	var batch []domain.Article
	for _, u := range []string{"1", "2", "3", "4", "5"} {
		batch = append(batch, article("tech", "https://x/"+u))
	}
	h.source.groups = map[string][]domain.Article{"tech": batch}
	h.backend.summary = func(user string) (string, error) {
		if strings.Contains(user, "https://x/3") {
			return "<html>oops</html>", nil
		}
		return okAnswer, nil
	}

	results, err := h.pipeline.Run(context.Background(), 0, "")
	require.NoError(t, err)
	require.Len(t, results, 5)
	degraded := 0
	for _, r := range results {
		if r.Degraded {
			degraded++
			assert.Equal(t, parseFailedSummary, r.Summary)
		}
	}
	assert.Equal(t, 1, degraded)
	assert.True(t, results[2].Degraded)
}

func TestInitializeRequiresCredentials(t *testing.T) {
	store := newFakeStore()
	p := NewPipeline(PipelineDeps{
		Sources:    &fakeSource{},
		Store:      store,
		Summarizer: NewSummarizer(&fakeBackend{}, ports.ChatParams{}, 3, silent()),
		Config:     PipelineConfig{Model: "m"},
		Logger:     silent(),
	})

	err := p.Initialize(context.Background())
	require.ErrorIs(t, err, ErrMissingCredentials)
	assert.False(t, p.Initialized())
	assert.Zero(t, store.schema)
}

func TestInitializeRunsBootstrapPerGroup(t *testing.T) {
	h := newHarness(t, &fakeSource{
		order: []string{"tech", "news"},
		groups: map[string][]domain.Article{
			"tech": {article("tech", "https://x/1")},
			"news": {article("news", "https://x/2")},
		},
	})

	require.NoError(t, h.pipeline.Initialize(context.Background()))
	assert.True(t, h.pipeline.Initialized())
	assert.Equal(t, 1, h.store.schema)
	assert.Len(t, h.store.cutoffs, 1)
	assert.Len(t, h.notifier.matched["tech"], 1)
	assert.Len(t, h.notifier.matched["news"], 1)
	assert.Zero(t, h.source.fetchAll.Load())

	require.NoError(t, h.pipeline.Initialize(context.Background()))
	assert.Equal(t, 1, h.store.schema)
}

func TestRunDropsDuplicateURLs(t *testing.T) {
	h := newHarness(t, &fakeSource{order: []string{"tech"}})
	h.pipeline.state.Store(stateReady)

	h.source.groups = map[string][]domain.Article{
		"tech": {article("tech", "https://x/same"), article("tech", "https://x/same")},
	}

	results, err := h.pipeline.Run(context.Background(), 0, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, h.notifier.routed, 1)
	assert.True(t, h.store.row("https://x/same").Sent)

	again, err := h.pipeline.Run(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, h.notifier.routed, 1)
}

func TestRunBackfillsMissingTitles(t *testing.T) {
	h := newHarness(t, &fakeSource{order: []string{"tg"}})
	h.pipeline.state.Store(stateReady)

	untitled := article("tg", "https://t.me/c/1")
	untitled.Title = "  "
	generated := article("tg", "https://t.me/c/2")
	generated.Title = ""
	generated.Content = "named"
	h.source.groups = map[string][]domain.Article{"tg": {untitled, generated}}
	h.backend.title = func(user string) (string, error) {
		if user == "named" {
			return "Сгенерированный", nil
		}
		return "", errors.New("quota")
	}

	results, err := h.pipeline.Run(context.Background(), 0, "tg")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Post from src 2024-05-01", results[0].Title)
	assert.Equal(t, "Сгенерированный", results[1].Title)
	assert.Equal(t, "Post from src 2024-05-01", h.store.row("https://t.me/c/1").Title)
}

func TestRunKeepsUnsentWhenNothingAttempted(t *testing.T) {
	h := newHarness(t, &fakeSource{order: []string{"tech"}})
	h.pipeline.state.Store(stateReady)
	h.notifier.drop = true
	h.source.groups = map[string][]domain.Article{"tech": {article("tech", "https://x/1")}}

	results, err := h.pipeline.Run(context.Background(), 0, "tech")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, h.store.row("https://x/1").Sent)
}

func TestRunPropagatesStoreErrors(t *testing.T) {
	h := newHarness(t, &fakeSource{order: []string{"tech"}})
	h.pipeline.state.Store(stateReady)
	h.store.insertErr = errors.New("disk full")
	h.source.groups = map[string][]domain.Article{"tech": {article("tech", "https://x/1")}}

	_, err := h.pipeline.Run(context.Background(), 0, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, h.backend.calls.Load())
}

func TestCleanupUsesRetentionWindow(t *testing.T) {
	h := newHarness(t, &fakeSource{})
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	h.pipeline.now = func() time.Time { return now }

	deleted, err := h.pipeline.CleanupOldArticles(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	require.Len(t, h.store.cutoffs, 1)
	assert.Equal(t, now.AddDate(0, 0, -7), h.store.cutoffs[0])

	_, err = h.pipeline.CleanupOldArticles(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -30), h.store.cutoffs[1])
}

func TestHealthAndStatistics(t *testing.T) {
	h := newHarness(t, &fakeSource{order: []string{"tech"}})

	health := h.pipeline.Health(context.Background())
	assert.True(t, health.Sources)
	assert.True(t, health.Model)
	assert.True(t, health.Store)
	assert.False(t, health.Healthy)
	assert.Contains(t, health.Details, "pipeline: not initialized")

	stats := h.pipeline.Statistics(context.Background())
	assert.False(t, stats.Initialized)
	assert.Nil(t, stats.Store)

	require.NoError(t, h.pipeline.Initialize(context.Background()))
	h.store.pingErr = errors.New("gone")
	health = h.pipeline.Health(context.Background())
	assert.False(t, health.Store)
	assert.False(t, health.Healthy)

	stats = h.pipeline.Statistics(context.Background())
	assert.True(t, stats.Initialized)
	assert.Equal(t, 1, stats.GroupsCount)
	require.NotNil(t, stats.Store)
}

type fakeDriver struct {
	started int
	job     func(time.Time)
}

func (d *fakeDriver) Start(_ context.Context, job func(time.Time)) error {
	d.started++
	d.job = job
	return nil
}

func (d *fakeDriver) Stop(context.Context) error { return nil }

func TestSchedulerDisabledIsNoop(t *testing.T) {
	driver := &fakeDriver{}
	s := NewScheduler(driver, newHarness(t, &fakeSource{}).pipeline, false, silent())
	require.NoError(t, s.Start(context.Background()))
	assert.Zero(t, driver.started)
}

func TestSchedulerFireRunsEveryGroup(t *testing.T) {
	h := newHarness(t, &fakeSource{order: []string{"tech", "news"}})
	require.NoError(t, h.pipeline.Initialize(context.Background()))

	h.source.groups = map[string][]domain.Article{
		"tech": {article("tech", "https://x/1"), article("tech", "https://x/2")},
		"news": {article("news", "https://x/3")},
	}

	driver := &fakeDriver{}
	s := NewScheduler(driver, h.pipeline, true, silent())
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, 1, driver.started)

	assert.Equal(t, 3, s.Fire(context.Background(), time.Now()))
	assert.Len(t, h.store.cutoffs, 2)

	driver.job(time.Now())
	assert.Len(t, h.store.cutoffs, 3)
}

func TestSchedulerFireSurvivesUninitializedPipeline(t *testing.T) {
	h := newHarness(t, &fakeSource{order: []string{"tech"}})
	s := NewScheduler(&fakeDriver{}, h.pipeline, true, silent())
	assert.Zero(t, s.Fire(context.Background(), time.Now()))
}

func TestRunDigestsReferencePersistedRows(t *testing.T) {
	h := newHarness(t, &fakeSource{order: []string{"tech"}})
	h.pipeline.state.Store(stateReady)

	fromAdapter := article("tech", "https://x/1")
	fromAdapter.ID = "adapter-42"
	h.source.groups = map[string][]domain.Article{"tech": {fromAdapter, article("tech", "https://x/2")}}

	results, err := h.pipeline.Run(context.Background(), 0, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ArticleID)
	assert.Equal(t, "2", results[1].ArticleID)
}
