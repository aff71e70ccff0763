package parser

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const (
	userAgent       = "NewsDigest/1.0"
	maxResponseSize = 8 << 20
)

var (
	stripPolicy = bluemonday.StrictPolicy()
	spaceExpr   = regexp.MustCompile(`\s+`)
	breakExpr   = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// getBody performs a GET and returns the body of a 200 response.
func getBody(ctx context.Context, client *http.Client, target, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", req.URL.Host, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// plainText strips markup and collapses whitespace.
func plainText(fragment string) string {
	withBreaks := breakExpr.ReplaceAllString(fragment, " ")
	text := html.UnescapeString(stripPolicy.Sanitize(withBreaks))
	return strings.TrimSpace(spaceExpr.ReplaceAllString(text, " "))
}
