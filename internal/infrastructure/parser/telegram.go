package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsDigest/internal/domain"
)

const telegramBaseURL = "https://t.me"

// TelegramScanner scrapes the public web preview (t.me/s/<channel>) of each
// channel and keeps posts published inside the look-back window.
type TelegramScanner struct {
	client       *http.Client
	baseURL      string
	channels     []string
	lookBackDays int
	location     *time.Location
	now          func() time.Time
	logger       *slog.Logger
}

// NewTelegramScanner requires at least one channel. lookBackDays <= 0 means today only.
func NewTelegramScanner(client *http.Client, baseURL string, channels []string, lookBackDays int, loc *time.Location, logger *slog.Logger) (*TelegramScanner, error) {
	if len(channels) == 0 {
		return nil, errors.New("telegram: no channels configured")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = telegramBaseURL
	}
	if lookBackDays <= 0 {
		lookBackDays = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramScanner{
		client:       client,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		channels:     channels,
		lookBackDays: lookBackDays,
		location:     loc,
		now:          time.Now,
		logger:       logger,
	}, nil
}

// Name identifies the adapter type.
func (t *TelegramScanner) Name() string {
	return "telegram"
}

// Scan walks channels in order. A failing channel is logged and skipped; the
// scan fails only when every channel failed.
func (t *TelegramScanner) Scan(ctx context.Context, limit int) ([]byte, error) {
	from, to := t.window()

	var (
		articles []domain.Article
		errs     []error
	)
	for _, channel := range t.channels {
		posts, err := t.scanChannel(ctx, channel, from, to)
		if err != nil {
			t.logger.Warn("telegram channel failed", "channel", channel, "error", err)
			errs = append(errs, fmt.Errorf("channel %s: %w", channel, err))
			continue
		}
		t.logger.Debug("parsed telegram channel", "channel", channel, "count", len(posts))
		articles = append(articles, posts...)
	}

	if len(errs) == len(t.channels) {
		return nil, fmt.Errorf("telegram: %w", errors.Join(errs...))
	}
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	if articles == nil {
		articles = []domain.Article{}
	}
	return json.Marshal(articles)
}

// window returns [start of the first day, end of today] in the scanner timezone.
func (t *TelegramScanner) window() (time.Time, time.Time) {
	now := t.now().In(t.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, t.location)
	from := today.AddDate(0, 0, -(t.lookBackDays - 1))
	to := today.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return from, to
}

func (t *TelegramScanner) scanChannel(ctx context.Context, channel string, from, to time.Time) ([]domain.Article, error) {
	target := fmt.Sprintf("%s/s/%s?%s", t.baseURL, url.PathEscape(channel), url.Values{
		"after":  {strconv.FormatInt(from.Unix(), 10)},
		"before": {strconv.FormatInt(to.Unix(), 10)},
	}.Encode())

	body, err := getBody(ctx, t.client, target, "text/html")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return t.extractPosts(doc, from, to), nil
}

func (t *TelegramScanner) extractPosts(doc *goquery.Document, from, to time.Time) []domain.Article {
	var posts []domain.Article

	doc.Find(".tgme_widget_message[data-post]").Each(func(_ int, msg *goquery.Selection) {
		postID, _ := msg.Attr("data-post")
		if postID == "" {
			return
		}

		fragment, err := msg.Find(".tgme_widget_message_text").First().Html()
		if err != nil {
			return
		}
		content := plainText(fragment)
		if content == "" {
			return
		}

		publishedAt := t.now()
		if raw, ok := msg.Find("time[datetime]").First().Attr("datetime"); ok {
			if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
				publishedAt = parsed
			}
		}
		if publishedAt.Before(from) || publishedAt.After(to) {
			return
		}

		posts = append(posts, domain.Article{
			ID:          postID,
			Content:     content,
			URL:         t.baseURL + "/" + postID,
			PublishedAt: publishedAt,
		})
	})

	return posts
}
