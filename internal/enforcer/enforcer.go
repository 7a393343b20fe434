// Package enforcer replaces a disallowed page with the static blocking
// view. Enforcement is terminal for the page lifecycle.
package enforcer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/KalaHanok/webclassification/internal/infrastructure/logging"
)

// maxBlockPageSize caps the fetched block document.
const maxBlockPageSize = 1 << 20

// defaultBlockBody is served when the remote block page cannot be fetched.
// Enforcement itself never fails open.
const defaultBlockBody = `<div class="blocked">
  <h1>Content Blocked</h1>
  <p>This page has been blocked by your content policy.</p>
</div>`

// Enforcer fetches and renders the blocking view.
type Enforcer struct {
	client  *retryablehttp.Client
	pageURL string
	log     *logging.Logger
}

// New creates an enforcer. pageURL may be empty, in which case the
// embedded block document is always used.
func New(pageURL string, log *logging.Logger) *Enforcer {
	if log == nil {
		log = logging.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	return &Enforcer{client: client, pageURL: pageURL, log: log}
}

// Render returns the full replacement document for a blocked page.
func (e *Enforcer) Render(ctx context.Context) string {
	body := defaultBlockBody
	if e.pageURL != "" {
		fetched, err := e.fetch(ctx)
		if err != nil {
			e.log.Warn("block page fetch failed, using embedded fallback", zap.Error(err))
		} else {
			body = fetched
		}
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Content Blocked</title>
</head>
<body>
%s
</body>
</html>`, body)
}

// fetch retrieves the static block document.
func (e *Enforcer) fetch(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", e.pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid block page URL: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("block page fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("block page fetch failed: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlockPageSize))
	if err != nil {
		return "", fmt.Errorf("block page read failed: %w", err)
	}
	return string(data), nil
}
