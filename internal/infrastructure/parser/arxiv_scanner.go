package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsDigest/internal/domain"
)

const (
	arxivBaseURL = "https://arxiv.org"
)

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// ArxivScanner crawls a listing page and extracts papers announced inside the look-back window.
type ArxivScanner struct {
	client       *http.Client
	listURL      string
	category     string
	lookBackDays int
	pageSize     int
	now          func() time.Time
}

// NewArxivScanner wires an HTTP client; pageSize defaults to 200.
func NewArxivScanner(client *http.Client, listURL, category string, lookBackDays int) (*ArxivScanner, error) {
	if listURL == "" {
		return nil, errors.New("arxiv: listing url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if lookBackDays <= 0 {
		lookBackDays = 1
	}
	return &ArxivScanner{
		client:       client,
		listURL:      listURL,
		category:     category,
		lookBackDays: lookBackDays,
		pageSize:     200,
		now:          time.Now,
	}, nil
}

// Name identifies the adapter type.
func (a *ArxivScanner) Name() string {
	return "arxiv"
}

// Scan pages through the listing until it reaches papers older than the window.
func (a *ArxivScanner) Scan(ctx context.Context, limit int) ([]byte, error) {
	today := a.now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -(a.lookBackDays - 1))

	results := make([]domain.Article, 0)
	seen := map[string]struct{}{}

	skip := 0
	for {
		pageURL, err := buildPageURL(a.listURL, skip, a.pageSize)
		if err != nil {
			return nil, fmt.Errorf("arxiv: %w", err)
		}

		doc, err := a.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("arxiv: %w", err)
		}

		pageArticles, shouldContinue := a.extractArticles(doc, from, today)
		for _, article := range pageArticles {
			if _, ok := seen[article.ID]; ok {
				continue
			}
			seen[article.ID] = struct{}{}
			results = append(results, article)
			if limit > 0 && len(results) == limit {
				return json.Marshal(results)
			}
		}

		if !shouldContinue {
			break
		}
		skip += a.pageSize
	}

	return json.Marshal(results)
}

func (a *ArxivScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func (a *ArxivScanner) extractArticles(doc *goquery.Document, from, to time.Time) ([]domain.Article, bool) {
	var (
		collected    []domain.Article
		continueScan = true
		processed    int
	)

	doc.Find("dl > dt").EachWithBreak(func(i int, dt *goquery.Selection) bool {
		dd := dt.Next()
		processed++

		article, err := parseEntry(dt, dd, a.category, a.now)
		if err != nil {
			return true
		}

		articleDay := article.PublishedAt.UTC().Truncate(24 * time.Hour)
		if articleDay.Before(from) {
			continueScan = false
			return false
		}
		if !articleDay.After(to) {
			collected = append(collected, article)
		}

		return true
	})

	if processed < a.pageSize {
		continueScan = false
	}

	return collected, continueScan
}

func parseEntry(dt, dd *goquery.Selection, category string, now func() time.Time) (domain.Article, error) {
	link := dt.Find("a[href*=\"/abs/\"]").First()
	href, _ := link.Attr("href")

	id := strings.TrimSpace(link.Text())
	if id == "" {
		id = strings.TrimPrefix(href, "/abs/")
	}
	if href == "" {
		return domain.Article{}, errors.New("entry has no abstract link")
	}
	if !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(arxivBaseURL, "/") + href
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimPrefix(title, "Title:")
	title = strings.TrimSpace(title)

	summary := dd.Find("p.mathjax").First().Text()
	summary = strings.TrimPrefix(strings.TrimSpace(summary), "Abstract:")
	summary = strings.TrimSpace(summary)

	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}

	publishedAt := now().UTC()
	if match := dateExpr.FindString(dateText); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			publishedAt = parsed
		}
	}

	if id == "" {
		id = href
	}

	var tags []string
	if category != "" {
		tags = []string{category}
	}

	return domain.Article{
		ID:          id,
		Title:       title,
		Content:     summary,
		URL:         href,
		PublishedAt: publishedAt,
		Tags:        tags,
	}, nil
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
