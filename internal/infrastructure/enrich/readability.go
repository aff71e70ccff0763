package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"NewsDigest/internal/ports"
)

const maxPageSize = 4 << 20

// Readability extracts the main text of an article page.
type Readability struct {
	client *http.Client
}

var _ ports.ContentExtractor = (*Readability)(nil)

// NewReadability wires an HTTP client with the given timeout.
func NewReadability(timeout time.Duration) *Readability {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Readability{client: &http.Client{Timeout: timeout}}
}

// WithClient swaps the HTTP client.
func (r *Readability) WithClient(client *http.Client) *Readability {
	r.client = client
	return r
}

// Extract downloads pageURL and returns its readable text.
func (r *Readability) Extract(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "NewsDigest/1.0")
	req.Header.Set("Accept", "text/html")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}
	return strings.TrimSpace(article.TextContent), nil
}
