package broker

import "strings"

// whitelistedDomains are major providers whose pages are never classified.
// Matching is a coarse substring check against the full URL, deliberately
// broader than the collector's search-result bypass.
var whitelistedDomains = []string{
	"google.com",
	"yahoo.com",
	"bing.com",
	"duckduckgo.com",
}

// isWhitelisted reports whether the URL belongs to a whitelisted provider.
func isWhitelisted(url string) bool {
	for _, domain := range whitelistedDomains {
		if strings.Contains(url, domain) {
			return true
		}
	}
	return false
}
