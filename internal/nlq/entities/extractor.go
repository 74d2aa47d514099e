// Package entities pulls typed tokens (addresses, names, comments) out of
// free-text network requests.
package entities

import (
	"regexp"
	"strings"

	"wapi-nlq/internal/models"
)

// Extractor turns raw query text into an EntityMap. Implementations never
// fail: a kind that is not found is simply absent.
type Extractor interface {
	Name() string
	Extract(text string) models.EntityMap
}

var (
	cidrPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}/\d{1,2}\b`)
	ipPattern   = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	// the alphabetic TLD keeps dotted quads out
	fqdnPattern = regexp.MustCompile(`\b[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*\.[a-zA-Z]{2,63}\b`)
	macPattern  = regexp.MustCompile(`\b[0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5}\b`)

	commentPattern = regexp.MustCompile(`(?i)\bcomment\s+(?:"([^"]*)"|'([^']*)'|([^"']+))`)
	ttlPattern     = regexp.MustCompile(`(?i)\bttl\s*(?:of|=|:)?\s*(\d+)`)
	extattrPattern = regexp.MustCompile(`(?i)\b(?:extattrs?|extensible\s+attributes?|ea)\s+(?:named\s+)?["']?([A-Za-z0-9_\-]+)`)
)

// PatternExtractor recognizes entities with regular expressions only.
type PatternExtractor struct{}

func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

func (p *PatternExtractor) Name() string { return "pattern" }

// Extract keeps the first match per kind. A CIDR claims its span so the
// address inside it is not reported again as a bare ip.
func (p *PatternExtractor) Extract(text string) models.EntityMap {
	out := models.EntityMap{}
	if strings.TrimSpace(text) == "" {
		return out
	}

	cidrSpans := cidrPattern.FindAllStringIndex(text, -1)
	if len(cidrSpans) > 0 {
		first := cidrSpans[0]
		out[models.EntityNetwork] = text[first[0]:first[1]]
	}

	for _, span := range ipPattern.FindAllStringIndex(text, -1) {
		if insideAny(span, cidrSpans) {
			continue
		}
		out[models.EntityIP] = text[span[0]:span[1]]
		break
	}

	if m := fqdnPattern.FindString(text); m != "" {
		out[models.EntityFQDN] = m
	}
	if m := macPattern.FindString(text); m != "" {
		out[models.EntityMAC] = m
	}
	if c := extractComment(text); c != "" {
		out[models.EntityComment] = c
	}
	if m := ttlPattern.FindStringSubmatch(text); m != nil {
		out[models.EntityTTL] = m[1]
	}
	if m := extattrPattern.FindStringSubmatch(text); m != nil {
		out[models.EntityExtAttr] = m[1]
	}

	return out
}

func extractComment(text string) string {
	m := commentPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	for _, group := range m[1:] {
		if v := strings.TrimSpace(group); v != "" {
			return v
		}
	}
	return ""
}

func insideAny(span []int, spans [][]int) bool {
	for _, s := range spans {
		if span[0] >= s[0] && span[1] <= s[1] {
			return true
		}
	}
	return false
}
