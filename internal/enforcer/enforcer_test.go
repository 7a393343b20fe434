package enforcer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderFetchesBlockPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<div class="policy">Blocked by policy</div>`))
	}))
	defer server.Close()

	e := New(server.URL, nil)
	doc := e.Render(context.Background())

	assert.Contains(t, doc, "Blocked by policy")
	assert.Contains(t, doc, "<!DOCTYPE html>")
	assert.Contains(t, doc, "<title>Content Blocked</title>")
}

func TestRenderFallsBackOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	e := New(server.URL, nil)
	doc := e.Render(context.Background())

	assert.Contains(t, doc, "blocked by your content policy")
}

func TestRenderFallsBackWhenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	e := New(server.URL, nil)
	doc := e.Render(context.Background())

	assert.Contains(t, doc, "blocked by your content policy")
}

func TestRenderWithoutURLUsesEmbeddedView(t *testing.T) {
	e := New("", nil)
	doc := e.Render(context.Background())

	assert.Contains(t, doc, "Content Blocked")
	assert.Contains(t, doc, "blocked by your content policy")
}
