package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"NewsDigest/internal/domain"
)

const dumaBaseURL = "http://api.duma.gov.ru/api"

var dumaTags = []string{"финансы", "госдума", "заседание", "стенограмма"}

// DumaScanner pulls yesterday's plenary transcripts from the State Duma API.
type DumaScanner struct {
	client   *http.Client
	baseURL  string
	token    string
	appToken string
	location *time.Location
	now      func() time.Time
}

type dumaResponse struct {
	Meetings []dumaMeeting `json:"meetings"`
}

type dumaMeeting struct {
	Number any      `json:"number"`
	Date   string   `json:"date"`
	Lines  []string `json:"lines"`
}

// NewDumaScanner requires both API tokens.
func NewDumaScanner(client *http.Client, baseURL, token, appToken string, loc *time.Location) (*DumaScanner, error) {
	if token == "" || appToken == "" {
		return nil, errors.New("duma: token and appToken options are required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = dumaBaseURL
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DumaScanner{
		client:   client,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		token:    token,
		appToken: appToken,
		location: loc,
		now:      time.Now,
	}, nil
}

// Name identifies the adapter type.
func (d *DumaScanner) Name() string {
	return "duma"
}

// Scan fetches the full transcript list for the previous day.
func (d *DumaScanner) Scan(ctx context.Context, limit int) ([]byte, error) {
	day := d.now().In(d.location).AddDate(0, 0, -1).Format(time.DateOnly)
	target := fmt.Sprintf("%s/%s/transcriptFull/%s.json?%s",
		d.baseURL, url.PathEscape(d.token), day, url.Values{"app_token": {d.appToken}}.Encode())

	body, err := getBody(ctx, d.client, target, "application/json")
	if err != nil {
		return nil, fmt.Errorf("duma: %w", err)
	}

	var payload dumaResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("duma: decode response: %w", err)
	}

	articles := make([]domain.Article, 0, len(payload.Meetings))
	for i, meeting := range payload.Meetings {
		articles = append(articles, d.toArticle(meeting, i, day))
		if limit > 0 && len(articles) == limit {
			break
		}
	}
	return json.Marshal(articles)
}

func (d *DumaScanner) toArticle(m dumaMeeting, index int, day string) domain.Article {
	number := fmt.Sprint(index + 1)
	if m.Number != nil {
		number = fmt.Sprint(m.Number)
	}
	date := m.Date
	if date == "" {
		date = day
	}

	content := strings.TrimSpace(strings.Join(m.Lines, "\n"))
	if content == "" {
		content = fmt.Sprintf("Стенограмма заседания Государственной Думы от %s", date)
	}

	publishedAt, err := time.ParseInLocation(time.DateOnly, date, d.location)
	if err != nil {
		publishedAt = d.now()
	}

	return domain.Article{
		ID:          fmt.Sprintf("duma-%s-%s", day, number),
		Title:       fmt.Sprintf("Заседание Государственной Думы №%s от %s", number, date),
		Content:     content,
		URL:         fmt.Sprintf("%s/transcriptFull/%s.json#meeting-%s", d.baseURL, day, number),
		PublishedAt: publishedAt,
		Tags:        append([]string(nil), dumaTags...),
	}
}
