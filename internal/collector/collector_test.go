package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KalaHanok/webclassification/internal/broker"
	"github.com/KalaHanok/webclassification/internal/identity"
	"github.com/KalaHanok/webclassification/internal/transport"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
	<title>Sample</title>
	<style>body { color: red; }</style>
	<script>var secret = "do not extract";</script>
</head>
<body>
	<h1>Visible Heading</h1>
	<p>First   paragraph with
	uneven    spacing.</p>
	<script>console.log("inline");</script>
	<noscript>Please enable JavaScript</noscript>
	<iframe src="https://ads.example/frame"></iframe>
	<div>Second paragraph.</div>
</body>
</html>`

// fakeEnforcer records invocations and returns a fixed blocking view.
type fakeEnforcer struct {
	calls atomic.Int64
}

func (f *fakeEnforcer) Render(ctx context.Context) string {
	f.calls.Add(1)
	return "<html><body>Content Blocked</body></html>"
}

// startStack builds a collector over a broker and a fake classifier.
func startStack(t *testing.T, verdictBody string, registered bool) (*Collector, *fakeEnforcer, *atomic.Int64) {
	t.Helper()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(verdictBody))
	}))
	t.Cleanup(server.Close)

	store := identity.NewStore(t.TempDir(), nil)
	if registered {
		require.NoError(t, store.Save(context.Background(), identity.Identity{
			Registered: true,
			DeviceID:   "abc-123",
			Username:   "alice",
		}))
	}

	b := broker.New(store, transport.NewClassifier(server.URL), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)

	enf := &fakeEnforcer{}
	return New(b, enf, nil, nil), enf, &calls
}

func TestExtractTextStripsCodeSubtrees(t *testing.T) {
	doc, err := loadDocument([]byte(samplePage))
	require.NoError(t, err)

	text := extractText(doc)

	assert.Contains(t, text, "Visible Heading")
	assert.Contains(t, text, "First paragraph with uneven spacing.")
	assert.Contains(t, text, "Second paragraph.")
	assert.NotContains(t, text, "do not extract")
	assert.NotContains(t, text, "console.log")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Please enable JavaScript")
}

func TestExtractTextDoesNotMutateDocument(t *testing.T) {
	doc, err := loadDocument([]byte(samplePage))
	require.NoError(t, err)

	_ = extractText(doc)

	assert.Equal(t, 2, doc.Find("script").Length(), "live document must keep its script nodes")
	assert.Equal(t, 1, doc.Find("iframe").Length())
}

func TestLoadDocumentRejectsOversizedInput(t *testing.T) {
	_, err := loadDocument(make([]byte, MaxPageSize+1))
	assert.Error(t, err)

	_, err = loadDocument(nil)
	assert.Error(t, err)
}

func TestSearchEngineBypassSkipsRequest(t *testing.T) {
	c, enf, calls := startStack(t, `{"block": true}`, true)

	page := NewPageLoad("https://www.google.com/search?q=x", []byte(samplePage))
	disposition := c.Inspect(context.Background(), page)

	assert.True(t, disposition.Bypassed)
	assert.False(t, disposition.Blocked)
	assert.Equal(t, int64(0), calls.Load(), "search result pages never produce classification requests")
	assert.Equal(t, int64(0), enf.calls.Load())
}

func TestSearchEnginePatterns(t *testing.T) {
	assert.True(t, isSearchEngine("https://www.google.com/search?q=x"))
	assert.True(t, isSearchEngine("https://bing.com/search?q=x"))
	assert.True(t, isSearchEngine("https://duckduckgo.com/?q=x"))
	assert.True(t, isSearchEngine("https://search.yahoo.com/search?p=x"))
	assert.False(t, isSearchEngine("https://example.com/search"))
	assert.False(t, isSearchEngine("https://www.google.com/maps"))
}

func TestBlockedPageInvokesEnforcer(t *testing.T) {
	c, enf, _ := startStack(t, `{"block": true}`, true)

	page := NewPageLoad("https://badsite.example/", []byte(samplePage))
	disposition := c.Inspect(context.Background(), page)

	assert.True(t, disposition.Blocked)
	assert.Contains(t, disposition.ReplacementHTML, "Content Blocked")
	assert.Equal(t, int64(1), enf.calls.Load())
}

func TestAllowedPageRendersUnmodified(t *testing.T) {
	c, enf, _ := startStack(t, `{"block": false}`, true)

	page := NewPageLoad("https://example.com/", []byte(samplePage))
	disposition := c.Inspect(context.Background(), page)

	assert.False(t, disposition.Blocked)
	assert.Empty(t, disposition.ReplacementHTML)
	assert.Equal(t, int64(0), enf.calls.Load())
}

func TestUnregisteredDeviceAllowsEverything(t *testing.T) {
	c, _, calls := startStack(t, `{"block": true}`, false)

	page := NewPageLoad("https://example.com/", []byte(samplePage))
	disposition := c.Inspect(context.Background(), page)

	assert.False(t, disposition.Blocked)
	assert.Equal(t, int64(0), calls.Load())
}

func TestInspectRunsOncePerLoad(t *testing.T) {
	c, _, calls := startStack(t, `{"block": false}`, true)

	page := NewPageLoad("https://example.com/", []byte(samplePage))
	first := c.Inspect(context.Background(), page)
	second := c.Inspect(context.Background(), page)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load(), "a page load is classified at most once")
}

func TestUnparseablePageFailsOpen(t *testing.T) {
	c, enf, _ := startStack(t, `{"block": true}`, true)

	page := NewPageLoad("https://example.com/", nil)
	disposition := c.Inspect(context.Background(), page)

	assert.False(t, disposition.Blocked)
	assert.Equal(t, int64(0), enf.calls.Load())
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", normalizeWhitespace("  a\n\tb   c  "))
	assert.Equal(t, "", normalizeWhitespace("   \n\t "))
}
