package collector

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// MaxPageSize limits page input to 10MB to prevent memory exhaustion.
const MaxPageSize = 10 * 1024 * 1024

// strippedElements are removed from the cloned document before text
// extraction so code and markup never leak into the classified text.
const strippedElements = "script, style, noscript, iframe"

// textPolicy strips every remaining tag; extraction wants rendered text only.
var textPolicy = bluemonday.StrictPolicy()

// detectCharset detects the charset of raw page bytes, defaulting to utf-8.
func detectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// loadDocument parses page bytes with automatic charset conversion.
func loadDocument(data []byte) (*goquery.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("page content required")
	}
	if len(data) > MaxPageSize {
		return nil, fmt.Errorf("page exceeds maximum size of %d bytes", MaxPageSize)
	}

	reader, err := charset.NewReader(bytes.NewReader(data), detectCharset(data))
	if err != nil {
		// Fallback to direct parsing
		return goquery.NewDocumentFromReader(bytes.NewReader(data))
	}
	return goquery.NewDocumentFromReader(reader)
}

// extractText returns the rendered text of the document body. The live
// document is never mutated: stripping happens on a clone, purely to keep
// the extracted text free of code and markup.
func extractText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	clone := body.Clone()
	clone.Find(strippedElements).Remove()

	rendered, err := goquery.OuterHtml(clone)
	if err != nil {
		rendered = clone.Text()
	}

	text := textPolicy.Sanitize(rendered)
	text = stdhtml.UnescapeString(text)
	return normalizeWhitespace(text)
}

// normalizeWhitespace collapses runs of whitespace into single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
