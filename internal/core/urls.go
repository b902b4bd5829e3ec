package core

import (
	"regexp"
)

var urlPattern = regexp.MustCompile("(?i)https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")

// ExtractURLs scans text for http(s) URLs, returning each one once in
// first-seen order
func ExtractURLs(texts ...string) []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, text := range texts {
		for _, u := range urlPattern.FindAllString(text, -1) {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	return urls
}
