// Package formfill embeds device identity signals into page documents:
// every form gains hidden device_hash and device_data fields, and the page
// body gains screen dimension fields, so unrelated form submissions carry
// identity material.
package formfill

import (
	"fmt"
	stdhtml "html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/KalaHanok/webclassification/internal/fingerprint"
)

// hiddenInput renders an escaped hidden form field.
func hiddenInput(name, value string) string {
	return fmt.Sprintf(`<input type="hidden" name="%s" value="%s">`,
		stdhtml.EscapeString(name), stdhtml.EscapeString(value))
}

// Inject rewrites the document, embedding the fingerprint into every form
// plus page-level screen fields. Documents without forms still receive the
// screen fields. Returns the rewritten HTML.
func Inject(doc *goquery.Document, fp fingerprint.Fingerprint, screen fingerprint.Screen) (string, error) {
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		form.AppendHtml(hiddenInput("device_hash", fp.Hash))
		form.AppendHtml(hiddenInput("device_data", string(fp.Raw)))
	})

	body := doc.Find("body")
	body.AppendHtml(hiddenInput("screen_width", fmt.Sprintf("%d", screen.Width)))
	body.AppendHtml(hiddenInput("screen_height", fmt.Sprintf("%d", screen.Height)))

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return out, nil
}

// InjectHTML parses raw HTML and injects identity fields.
func InjectHTML(html string, fp fingerprint.Fingerprint, screen fingerprint.Screen) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse document: %w", err)
	}
	return Inject(doc, fp, screen)
}
