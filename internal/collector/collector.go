// Package collector inspects page loads: it extracts visible text, applies
// the search-engine bypass, requests a verdict from the broker, and hands
// blocked pages to the enforcer. Every failure on this path allows the
// page to render unmodified.
package collector

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/KalaHanok/webclassification/internal/broker"
	"github.com/KalaHanok/webclassification/internal/infrastructure/logging"
	"github.com/KalaHanok/webclassification/internal/infrastructure/monitoring"
)

// Enforcer renders the blocking view that replaces a disallowed page.
type Enforcer interface {
	Render(ctx context.Context) string
}

// PageLoad is one page lifecycle. A load is inspected at most once even if
// readiness fires twice.
type PageLoad struct {
	URL     string
	Content []byte

	once   sync.Once
	result Disposition
}

// NewPageLoad creates a page load for inspection.
func NewPageLoad(url string, content []byte) *PageLoad {
	return &PageLoad{URL: url, Content: content}
}

// Disposition is the terminal outcome of inspecting a page load.
type Disposition struct {
	// Blocked reports that the page document was replaced. ReplacementHTML
	// carries the blocking view; no further collector logic runs for the
	// load afterward.
	Blocked         bool
	ReplacementHTML string

	// Bypassed reports the search-engine bypass fired: no verdict was
	// requested and the page can never be blocked.
	Bypassed bool

	// Text is the extracted content sent for classification.
	Text string
}

// Collector requests verdicts for page loads.
type Collector struct {
	broker   *broker.Broker
	enforcer Enforcer
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// New creates a collector.
func New(b *broker.Broker, e Enforcer, log *logging.Logger, metrics *monitoring.Metrics) *Collector {
	if log == nil {
		log = logging.NewNop()
	}
	return &Collector{broker: b, enforcer: e, log: log, metrics: metrics}
}

// Inspect decides the disposition of a page load. It runs the pipeline at
// most once per load; repeat calls return the settled disposition.
func (c *Collector) Inspect(ctx context.Context, page *PageLoad) Disposition {
	page.once.Do(func() {
		page.result = c.inspect(ctx, page)
	})
	return page.result
}

func (c *Collector) inspect(ctx context.Context, page *PageLoad) Disposition {
	// Search-result pages are expected entry points; skip the request
	// entirely.
	if isSearchEngine(page.URL) {
		c.log.Debug("search engine page bypassed", zap.String("url", page.URL))
		c.count(monitoring.OutcomeBypassed)
		if c.metrics != nil {
			c.metrics.PagesBypassed.Inc()
		}
		return Disposition{Bypassed: true}
	}

	text, err := c.extract(page)
	if err != nil {
		// Unreadable input must not block the page.
		c.log.Warn("text extraction failed, allowing page", zap.Error(err), zap.String("url", page.URL))
		c.count(monitoring.OutcomeFailOpen)
		return Disposition{}
	}

	verdict := c.broker.Classify(ctx, page.URL, text)
	if !verdict.Block {
		c.count(monitoring.OutcomeAllowed)
		return Disposition{Text: text}
	}

	c.log.Info("page blocked", zap.String("url", page.URL), zap.String("reason", verdict.Reason))
	c.count(monitoring.OutcomeBlocked)
	return Disposition{
		Blocked:         true,
		ReplacementHTML: c.enforcer.Render(ctx),
		Text:            text,
	}
}

// extract parses the page and returns its visible text.
func (c *Collector) extract(page *PageLoad) (string, error) {
	doc, err := loadDocument(page.Content)
	if err != nil {
		return "", err
	}
	return extractText(doc), nil
}

func (c *Collector) count(disposition string) {
	if c.metrics != nil {
		c.metrics.PagesProcessed.WithLabelValues(disposition).Inc()
	}
}
