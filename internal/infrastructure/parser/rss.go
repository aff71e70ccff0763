package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"NewsDigest/internal/domain"
)

// keywordTag adds Tag when Stem occurs in an item's title or content.
type keywordTag struct {
	Stem string
	Tag  string
}

// RSSScanner reads an RSS or Atom feed.
type RSSScanner struct {
	feedURL  string
	tags     []string
	keywords []keywordTag
	parser   *gofeed.Parser
	now      func() time.Time
}

// NewRSSScanner builds a feed adapter. keywords is a comma separated list of
// stem:tag pairs, e.g. "инвест:инвестиции,добыч:добыча".
func NewRSSScanner(client *http.Client, feedURL string, tags []string, keywords string) (*RSSScanner, error) {
	if feedURL == "" {
		return nil, errors.New("rss: feed url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	fp := gofeed.NewParser()
	fp.Client = client
	fp.UserAgent = userAgent

	return &RSSScanner{
		feedURL:  feedURL,
		tags:     tags,
		keywords: parseKeywords(keywords),
		parser:   fp,
		now:      time.Now,
	}, nil
}

// Name identifies the adapter type.
func (r *RSSScanner) Name() string {
	return "rss"
}

// Scan downloads the feed and converts items that have both a title and a link.
func (r *RSSScanner) Scan(ctx context.Context, limit int) ([]byte, error) {
	feed, err := r.parser.ParseURLWithContext(r.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("rss: parse %s: %w", r.feedURL, err)
	}

	items := feed.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	articles := make([]domain.Article, 0, len(items))
	for _, item := range items {
		if item == nil || item.Title == "" || item.Link == "" {
			continue
		}

		body := item.Content
		if body == "" {
			body = item.Description
		}
		content := plainText(body)

		articles = append(articles, domain.Article{
			ID:          item.GUID,
			Title:       strings.TrimSpace(item.Title),
			Content:     content,
			URL:         item.Link,
			PublishedAt: r.publishedAt(item),
			Tags:        r.tagsFor(item.Title, content),
		})
	}

	return json.Marshal(articles)
}

func (r *RSSScanner) publishedAt(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return r.now()
}

func (r *RSSScanner) tagsFor(title, content string) []string {
	tags := append([]string(nil), r.tags...)
	haystack := strings.ToLower(title + " " + content)
	for _, kw := range r.keywords {
		if strings.Contains(haystack, kw.Stem) {
			tags = append(tags, kw.Tag)
		}
	}
	return tags
}

func parseKeywords(raw string) []keywordTag {
	var keywords []keywordTag
	for _, pair := range strings.Split(raw, ",") {
		stem, tag, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || stem == "" || tag == "" {
			continue
		}
		keywords = append(keywords, keywordTag{
			Stem: strings.ToLower(strings.TrimSpace(stem)),
			Tag:  strings.TrimSpace(tag),
		})
	}
	return keywords
}
