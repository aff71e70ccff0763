package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"NewsDigest/internal/domain"
)

const devToBaseURL = "https://dev.to/api/articles/latest"

// DevToScanner polls the dev.to latest-articles API filtered by tags.
type DevToScanner struct {
	client  *http.Client
	baseURL string
	tags    []string
}

type devToArticle struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	TagList     []string  `json:"tag_list"`
}

// NewDevToScanner wires an HTTP client; an empty baseURL uses the public API.
func NewDevToScanner(client *http.Client, baseURL string, tags []string) *DevToScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = devToBaseURL
	}
	return &DevToScanner{client: client, baseURL: baseURL, tags: tags}
}

// Name identifies the adapter type.
func (d *DevToScanner) Name() string {
	return "devto"
}

// Scan requests the first page of latest articles.
func (d *DevToScanner) Scan(ctx context.Context, limit int) ([]byte, error) {
	target, err := d.buildURL(limit)
	if err != nil {
		return nil, err
	}

	body, err := getBody(ctx, d.client, target, "application/json")
	if err != nil {
		return nil, fmt.Errorf("devto: %w", err)
	}

	var items []devToArticle
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("devto: decode response: %w", err)
	}

	articles := make([]domain.Article, 0, len(items))
	for _, item := range items {
		if item.URL == "" {
			continue
		}
		articles = append(articles, domain.Article{
			ID:          strconv.FormatInt(item.ID, 10),
			Title:       item.Title,
			Content:     plainText(item.Description),
			URL:         item.URL,
			PublishedAt: item.PublishedAt,
			Tags:        item.TagList,
		})
		if limit > 0 && len(articles) == limit {
			break
		}
	}

	return json.Marshal(articles)
}

func (d *DevToScanner) buildURL(limit int) (string, error) {
	parsed, err := url.Parse(d.baseURL)
	if err != nil {
		return "", fmt.Errorf("devto: invalid url %s: %w", d.baseURL, err)
	}

	query := parsed.Query()
	query.Set("page", "1")
	for _, tag := range d.tags {
		query.Add("tag", tag)
	}
	if limit > 0 {
		query.Set("per_page", strconv.Itoa(limit))
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
