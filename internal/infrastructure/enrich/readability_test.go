package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlePage = `<!DOCTYPE html>
<html><head><title>Signals land in the framework</title></head>
<body>
  <nav><a href="/">Home</a> <a href="/about">About</a></nav>
  <article>
    <h1>Signals land in the framework</h1>
    <p>The new release introduces fine-grained reactivity through signals. Components now re-render only the parts
    of the tree that actually depend on the changed value, which reduces work on every update.</p>
    <p>Migration is incremental: existing hooks keep working, and teams can adopt signals one component at a time
    while measuring the effect on their bundle size and interaction latency.</p>
    <p>The release notes also describe new devtools panels that visualise the dependency graph of each signal.</p>
  </article>
  <footer>Copyright</footer>
</body></html>`

func TestReadabilityExtractsMainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	}))
	defer server.Close()

	text, err := NewReadability(0).WithClient(server.Client()).Extract(context.Background(), server.URL+"/post")
	require.NoError(t, err)
	assert.Contains(t, text, "fine-grained reactivity")
}

func TestReadabilityReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := NewReadability(0).WithClient(server.Client()).Extract(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
