package parser

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/scanner"
)

func decodeArticles(t *testing.T, raw []byte) []domain.Article {
	t.Helper()
	var articles []domain.Article
	require.NoError(t, json.Unmarshal(raw, &articles))
	return articles
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDevToScannerMapsArticles(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 1, "title": "Hooks", "description": "<p>All about &amp; hooks</p>", "url": "https://dev.to/a/hooks",
			 "published_at": "2025-11-08T10:00:00Z", "tag_list": ["react", "javascript"]},
			{"id": 2, "title": "No url", "description": "skip", "url": ""},
			{"id": 3, "title": "Types", "description": "ts", "url": "https://dev.to/a/types",
			 "published_at": "2025-11-08T11:00:00Z", "tag_list": []}
		]`))
	}))
	defer server.Close()

	sc := NewDevToScanner(server.Client(), server.URL, []string{"javascript", "react"})
	raw, err := sc.Scan(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"javascript", "react"}, gotQuery["tag"])
	assert.Equal(t, []string{"5"}, gotQuery["per_page"])
	assert.Equal(t, []string{"1"}, gotQuery["page"])

	articles := decodeArticles(t, raw)
	require.Len(t, articles, 2)
	assert.Equal(t, "Hooks", articles[0].Title)
	assert.Equal(t, "All about & hooks", articles[0].Content)
	assert.Equal(t, []string{"react", "javascript"}, articles[0].Tags)
	assert.Equal(t, "1", articles[0].ID)
}

func TestDevToScannerPropagatesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewDevToScanner(server.Client(), server.URL, nil).Scan(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

const telegramPage = `<html><body>
<div class="tgme_widget_message_wrap">
  <div class="tgme_widget_message js-widget_message" data-post="tproger_web/101">
    <div class="tgme_widget_message_text js-message_text">New <b>React</b> release<br/>details</div>
    <a class="tgme_widget_message_date"><time datetime="2025-11-08T09:00:00+00:00">09:00</time></a>
  </div>
</div>
<div class="tgme_widget_message_wrap">
  <div class="tgme_widget_message js-widget_message" data-post="tproger_web/100">
    <div class="tgme_widget_message_text js-message_text">Yesterday news</div>
    <a class="tgme_widget_message_date"><time datetime="2025-11-07T09:00:00+00:00">09:00</time></a>
  </div>
</div>
<div class="tgme_widget_message_wrap">
  <div class="tgme_widget_message js-widget_message" data-post="tproger_web/102">
    <div class="tgme_widget_message_photo"></div>
    <a class="tgme_widget_message_date"><time datetime="2025-11-08T10:00:00+00:00">10:00</time></a>
  </div>
</div>
</body></html>`

func TestTelegramScannerFiltersByWindow(t *testing.T) {
	var requested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		if r.URL.Path != "/s/tproger_web" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		assert.NotEmpty(t, r.URL.Query().Get("after"))
		assert.NotEmpty(t, r.URL.Query().Get("before"))
		_, _ = w.Write([]byte(telegramPage))
	}))
	defer server.Close()

	sc, err := NewTelegramScanner(server.Client(), server.URL, []string{"tproger_web", "missing"}, 1, time.UTC, quietLogger())
	require.NoError(t, err)
	sc.now = func() time.Time { return time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC) }

	raw, err := sc.Scan(context.Background(), 0)
	require.NoError(t, err)

	articles := decodeArticles(t, raw)
	require.Len(t, articles, 1)
	assert.Equal(t, "New React release details", articles[0].Content)
	assert.Equal(t, server.URL+"/tproger_web/101", articles[0].URL)
	assert.Empty(t, articles[0].Title)
	assert.Equal(t, []string{"/s/tproger_web", "/s/missing"}, requested)
}

func TestTelegramScannerLookBackWidensWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(telegramPage))
	}))
	defer server.Close()

	sc, err := NewTelegramScanner(server.Client(), server.URL, []string{"tproger_web"}, 3, time.UTC, quietLogger())
	require.NoError(t, err)
	sc.now = func() time.Time { return time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC) }

	raw, err := sc.Scan(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, decodeArticles(t, raw), 2)

	raw, err = sc.Scan(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, decodeArticles(t, raw), 1)
}

func TestTelegramScannerFailsWhenEveryChannelFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	sc, err := NewTelegramScanner(server.Client(), server.URL, []string{"a", "b"}, 1, nil, quietLogger())
	require.NoError(t, err)

	_, err = sc.Scan(context.Background(), 0)
	require.Error(t, err)
}

func TestTelegramScannerRequiresChannels(t *testing.T) {
	_, err := NewTelegramScanner(nil, "", nil, 1, nil, nil)
	require.Error(t, err)
}

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
  <title>Пресс-центр</title>
  <item>
    <title>Инвестиционная программа</title>
    <link>https://example.com/news/1</link>
    <description><![CDATA[<p>Компания объявила о новых <b>инвестициях</b></p>]]></description>
    <pubDate>Sat, 08 Nov 2025 09:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Без ссылки</title>
    <description>skip me</description>
  </item>
  <item>
    <title>Рост добычи</title>
    <link>https://example.com/news/2</link>
    <description>Добыча выросла</description>
  </item>
</channel></rss>`

func TestRSSScannerParsesFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFeed))
	}))
	defer server.Close()

	sc, err := NewRSSScanner(server.Client(), server.URL, []string{"новости"}, "инвест:инвестиции, добыч:добыча, broken")
	require.NoError(t, err)
	fixed := time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC)
	sc.now = func() time.Time { return fixed }

	raw, err := sc.Scan(context.Background(), 0)
	require.NoError(t, err)

	articles := decodeArticles(t, raw)
	require.Len(t, articles, 2)

	assert.Equal(t, "Инвестиционная программа", articles[0].Title)
	assert.Equal(t, "Компания объявила о новых инвестициях", articles[0].Content)
	assert.Equal(t, []string{"новости", "инвестиции"}, articles[0].Tags)
	assert.Equal(t, time.Date(2025, time.November, 8, 9, 0, 0, 0, time.UTC), articles[0].PublishedAt.UTC())

	assert.Equal(t, []string{"новости", "добыча"}, articles[1].Tags)
	assert.True(t, fixed.Equal(articles[1].PublishedAt))
}

func TestRSSScannerHonorsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssFeed))
	}))
	defer server.Close()

	sc, err := NewRSSScanner(server.Client(), server.URL, nil, "")
	require.NoError(t, err)

	raw, err := sc.Scan(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, decodeArticles(t, raw), 1)
}

func TestDumaScannerRequestsYesterday(t *testing.T) {
	var gotPath, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("app_token")
		_, _ = w.Write([]byte(`{"meetings": [
			{"number": 42, "date": "2025-11-07", "lines": ["Председательствующий.", "Начинаем заседание."]},
			{"date": "", "lines": []}
		]}`))
	}))
	defer server.Close()

	sc, err := NewDumaScanner(server.Client(), server.URL, "tok", "app", time.UTC)
	require.NoError(t, err)
	sc.now = func() time.Time { return time.Date(2025, time.November, 8, 6, 0, 0, 0, time.UTC) }

	raw, err := sc.Scan(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, "/tok/transcriptFull/2025-11-07.json", gotPath)
	assert.Equal(t, "app", gotToken)

	articles := decodeArticles(t, raw)
	require.Len(t, articles, 2)
	assert.Equal(t, "Заседание Государственной Думы №42 от 2025-11-07", articles[0].Title)
	assert.Equal(t, "Председательствующий.\nНачинаем заседание.", articles[0].Content)
	assert.NotEqual(t, articles[0].URL, articles[1].URL)
	assert.NotContains(t, articles[0].URL, "tok/")
	assert.Equal(t, "Стенограмма заседания Государственной Думы от 2025-11-07", articles[1].Content)
	assert.Contains(t, articles[1].Tags, "госдума")
}

func TestDumaScannerRequiresCredentials(t *testing.T) {
	_, err := NewDumaScanner(nil, "", "", "app", nil)
	require.Error(t, err)
}

func TestRegisterAllBuildsEveryType(t *testing.T) {
	f := scanner.NewFactory()
	RegisterAll(f, Deps{Logger: quietLogger()})

	assert.Equal(t, []string{TypeArxiv, TypeDevTo, TypeDuma, TypeRSS, TypeTelegram}, f.Kinds())

	sc, err := f.Build(config.SourceConfig{Name: "dvp", Type: TypeDevTo, Tags: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, "devto", sc.Name())

	_, err = f.Build(config.SourceConfig{Name: "tg", Type: TypeTelegram})
	require.Error(t, err)

	sc, err = f.Build(config.SourceConfig{Name: "duma", Type: TypeDuma, Options: map[string]string{"token": "t", "appToken": "a"}})
	require.NoError(t, err)
	assert.Equal(t, "duma", sc.Name())
}
