package collector

import "strings"

// searchEnginePatterns match search-result pages, which are expected entry
// points and must never be blocked or even classified. Matching is finer
// grained than the broker's provider whitelist: these are path patterns,
// not bare domains, and both checks stay at their respective layers.
var searchEnginePatterns = []string{
	"google.com/search",
	"bing.com/search",
	"duckduckgo.com/",
	"yahoo.com/search",
}

// isSearchEngine reports whether the URL is a search-result page.
func isSearchEngine(url string) bool {
	for _, pattern := range searchEnginePatterns {
		if strings.Contains(url, pattern) {
			return true
		}
	}
	return false
}
