package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KalaHanok/webclassification/internal/identity"
	"github.com/KalaHanok/webclassification/internal/transport"
)

// classifierDouble is a fake remote classifier tracking call counts.
type classifierDouble struct {
	calls   atomic.Int64
	status  int
	body    string
	mu      sync.Mutex
	lastReq map[string]interface{}
}

func (d *classifierDouble) last() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastReq
}

func newClassifierDouble(status int, body string) (*classifierDouble, *httptest.Server) {
	double := &classifierDouble{status: status, body: body}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		double.calls.Add(1)
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		double.mu.Lock()
		double.lastReq = req
		double.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(double.status)
		_, _ = w.Write([]byte(double.body))
	}))
	return double, server
}

// startBroker builds a broker over a temp identity store and runs its
// loop for the duration of the test.
func startBroker(t *testing.T, classifierURL string, id identity.Identity) (*Broker, *identity.Store) {
	t.Helper()

	store := identity.NewStore(t.TempDir(), nil)
	if id != (identity.Identity{}) {
		require.NoError(t, store.Save(context.Background(), id))
	}

	b := New(store, transport.NewClassifier(classifierURL), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	return b, store
}

func registered() identity.Identity {
	return identity.Identity{Registered: true, DeviceID: "abc-123", Username: "alice"}
}

func TestClassifyUnregisteredNeverCallsNetwork(t *testing.T) {
	double, server := newClassifierDouble(http.StatusOK, `{"block": true}`)
	defer server.Close()
	b, _ := startBroker(t, server.URL, identity.Identity{})

	verdict := b.Classify(context.Background(), "https://badsite.example/", "restricted content")

	assert.False(t, verdict.Block)
	assert.Equal(t, int64(0), double.calls.Load(), "unregistered devices must not issue network calls")
}

func TestClassifyWhitelistedDomainSkipsNetwork(t *testing.T) {
	double, server := newClassifierDouble(http.StatusOK, `{"block": true}`)
	defer server.Close()
	b, _ := startBroker(t, server.URL, registered())

	for _, url := range []string{
		"https://google.com/",
		"https://www.yahoo.com/news",
		"https://bing.com/images",
		"https://duckduckgo.com/about",
	} {
		verdict := b.Classify(context.Background(), url, "anything")
		assert.False(t, verdict.Block, url)
	}
	assert.Equal(t, int64(0), double.calls.Load())
}

func TestClassifyBlockVerdict(t *testing.T) {
	double, server := newClassifierDouble(http.StatusOK, `{"block": true, "reason": "restricted"}`)
	defer server.Close()
	b, _ := startBroker(t, server.URL, registered())

	verdict := b.Classify(context.Background(), "https://badsite.example/", "restricted content")

	assert.True(t, verdict.Block)
	assert.Equal(t, "restricted", verdict.Reason)
	assert.Equal(t, int64(1), double.calls.Load())

	assert.Equal(t, "https://badsite.example/", double.last()["domain"])
	assert.Equal(t, "restricted content", double.last()["text_content"])
	assert.Equal(t, "abc-123", double.last()["device_id"])
}

func TestClassifyAllowVerdict(t *testing.T) {
	_, server := newClassifierDouble(http.StatusOK, `{"block": false}`)
	defer server.Close()
	b, _ := startBroker(t, server.URL, registered())

	verdict := b.Classify(context.Background(), "https://example.com/", "hello world")

	assert.False(t, verdict.Block)
}

func TestClassifyFailsOpenOnServerError(t *testing.T) {
	_, server := newClassifierDouble(http.StatusInternalServerError, `{"detail": "boom"}`)
	defer server.Close()
	b, _ := startBroker(t, server.URL, registered())

	verdict := b.Classify(context.Background(), "https://badsite.example/", "restricted content")

	assert.False(t, verdict.Block, "non-2xx must fail open")
}

func TestClassifyFailsOpenOnMalformedBody(t *testing.T) {
	_, server := newClassifierDouble(http.StatusOK, `{not json`)
	defer server.Close()
	b, _ := startBroker(t, server.URL, registered())

	verdict := b.Classify(context.Background(), "https://badsite.example/", "restricted content")

	assert.False(t, verdict.Block, "malformed verdict must fail open")
}

func TestClassifyFailsOpenOnUnreachableService(t *testing.T) {
	_, server := newClassifierDouble(http.StatusOK, `{"block": true}`)
	server.Close() // nothing listening
	b, _ := startBroker(t, server.URL, registered())

	verdict := b.Classify(context.Background(), "https://badsite.example/", "restricted content")

	assert.False(t, verdict.Block, "transport failure must fail open")
}

func TestDispatchUnknownMessageType(t *testing.T) {
	_, server := newClassifierDouble(http.StatusOK, `{}`)
	defer server.Close()
	b, _ := startBroker(t, server.URL, identity.Identity{})

	resp := b.Dispatch(context.Background(), Request{Type: "checkContent"})

	assert.Equal(t, ErrUnknownMessage, resp.Error)
	assert.Nil(t, resp.Block)
	assert.Nil(t, resp.Success)
}

func TestUpdateRegistrationTransition(t *testing.T) {
	double, server := newClassifierDouble(http.StatusOK, `{"block": true}`)
	defer server.Close()
	b, _ := startBroker(t, server.URL, identity.Identity{})

	// Unregistered: fail open without a call.
	verdict := b.Classify(context.Background(), "https://badsite.example/", "text")
	assert.False(t, verdict.Block)
	assert.Equal(t, int64(0), double.calls.Load())

	resp := b.Dispatch(context.Background(), Request{
		Type:       KindUpdateRegistration,
		Registered: true,
		DeviceID:   "dev-42",
	})
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)

	// Registered: verdicts now reach the network.
	verdict = b.Classify(context.Background(), "https://badsite.example/", "text")
	assert.True(t, verdict.Block)
	assert.Equal(t, int64(1), double.calls.Load())
	assert.Equal(t, "dev-42", double.last()["device_id"])
}

func TestStaleRegistrationRaceFailsOpen(t *testing.T) {
	double, server := newClassifierDouble(http.StatusOK, `{"block": true}`)
	defer server.Close()

	// Broker started before registration completed: its mirror is stale.
	b, store := startBroker(t, server.URL, identity.Identity{})
	require.NoError(t, store.Save(context.Background(), registered()))

	verdict := b.Classify(context.Background(), "https://badsite.example/", "text")

	assert.False(t, verdict.Block, "stale unregistered state fails open by policy")
	assert.Equal(t, int64(0), double.calls.Load())
}

func TestRunLoadsPersistedIdentity(t *testing.T) {
	double, server := newClassifierDouble(http.StatusOK, `{"block": true}`)
	defer server.Close()
	b, _ := startBroker(t, server.URL, registered())

	verdict := b.Classify(context.Background(), "https://badsite.example/", "text")

	assert.True(t, verdict.Block)
	assert.Equal(t, int64(1), double.calls.Load())
}

func TestDispatchAfterShutdownFailsOpen(t *testing.T) {
	_, server := newClassifierDouble(http.StatusOK, `{"block": true}`)
	defer server.Close()

	store := identity.NewStore(t.TempDir(), nil)
	require.NoError(t, store.Save(context.Background(), registered()))
	b := New(store, transport.NewClassifier(server.URL), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	cancel()
	<-b.done

	resp := b.Dispatch(context.Background(), Request{Type: KindClassifyContent, URL: "https://badsite.example/"})

	require.NotNil(t, resp.Block)
	assert.False(t, *resp.Block)
}

func TestDispatchAfterShutdownNeverStrandsCaller(t *testing.T) {
	_, server := newClassifierDouble(http.StatusOK, `{"block": true}`)
	defer server.Close()

	store := identity.NewStore(t.TempDir(), nil)
	require.NoError(t, store.Save(context.Background(), registered()))
	b := New(store, transport.NewClassifier(server.URL), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	cancel()
	<-b.done

	// The buffered mailbox can still accept sends after the run loop has
	// exited. Every one of them must settle with the fail-open verdict,
	// even with a context that never expires.
	for i := 0; i < 50; i++ {
		settled := make(chan Response, 1)
		go func() {
			settled <- b.Dispatch(context.Background(), Request{
				Type: KindClassifyContent,
				URL:  "https://badsite.example/",
				Text: "text",
			})
		}()

		select {
		case resp := <-settled:
			require.NotNil(t, resp.Block, "dispatch %d", i)
			assert.False(t, *resp.Block, "dispatch %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("dispatch %d never received a reply after shutdown", i)
		}
	}
}

func TestIsWhitelisted(t *testing.T) {
	assert.True(t, isWhitelisted("https://google.com/"))
	assert.True(t, isWhitelisted("https://mail.google.com/inbox"))
	assert.False(t, isWhitelisted("https://example.com/"))
	assert.False(t, isWhitelisted("https://badsite.example/google"))
}
