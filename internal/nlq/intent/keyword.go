package intent

import (
	"context"
	"regexp"
	"strings"

	"wapi-nlq/internal/models"
	"wapi-nlq/internal/nlq/catalog"
)

// KeywordConfidence is reported for any keyword match.
const KeywordConfidence = 0.7

const defaultObjectNoun = "network"

type verbBucket struct {
	verb    string
	pattern *regexp.Regexp
}

// Buckets are checked in this order; the first bucket with a hit wins.
var verbBuckets = []verbBucket{
	{"create", keywordPattern("create", "add", "new", "make")},
	{"find", keywordPattern("find", "list", "show", "get", "search", "display")},
	{"update", keywordPattern("update", "modify", "change", "set", "edit")},
	{"delete", keywordPattern("delete", "remove", "destroy", "drop")},
}

var nounPattern = regexp.MustCompile(`(?i)\b(network|host|zone|lease|range|record|address)(?:s|es)?\b`)

// keywordPattern matches any keyword as a whole word in one of its
// inflected forms, so "address" does not count as "add".
func keywordPattern(words ...string) *regexp.Regexp {
	var forms []string
	for _, w := range words {
		forms = append(forms, inflections(w)...)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(forms, "|") + `)\b`)
}

// inflections lists the plain, plural, past and gerund forms of a verb:
// create/creating, drop/dropping, modify/modified.
func inflections(word string) []string {
	forms := []string{word, word + "s", word + "es", word + "d", word + "ed", word + "ing"}
	n := len(word)
	switch {
	case strings.HasSuffix(word, "e"):
		forms = append(forms, word[:n-1]+"ing")
	case n > 1 && word[n-1] == 'y' && !isVowel(word[n-2]):
		forms = append(forms, word[:n-1]+"ies", word[:n-1]+"ied")
	case n >= 3 && !isVowel(word[n-1]) && !strings.ContainsRune("wxy", rune(word[n-1])) &&
		isVowel(word[n-2]) && !isVowel(word[n-3]):
		last := word[n-1:]
		forms = append(forms, word+last+"ing", word+last+"ed")
	}
	return forms
}

func isVowel(c byte) bool {
	return strings.IndexByte("aeiou", c) >= 0
}

// KeywordStrategy is always available and serves as the fallback of last resort.
type KeywordStrategy struct {
	// DeriveObjectNoun names the intent after the first object noun in the
	// text instead of always using network.
	DeriveObjectNoun bool
}

func NewKeywordStrategy(deriveObjectNoun bool) *KeywordStrategy {
	return &KeywordStrategy{DeriveObjectNoun: deriveObjectNoun}
}

func (k *KeywordStrategy) Name() string { return "keyword" }

func (k *KeywordStrategy) Probe(context.Context, *catalog.Catalog) error { return nil }

func (k *KeywordStrategy) Classify(_ context.Context, text string, _ models.EntityMap, _ *catalog.Catalog) (models.ClassificationResult, error) {
	for _, b := range verbBuckets {
		if b.pattern.MatchString(text) {
			return models.ClassificationResult{
				Intent:     b.verb + "_" + k.objectNoun(text),
				Confidence: KeywordConfidence,
			}, nil
		}
	}
	return models.ClassificationResult{Intent: models.IntentUnknown, Confidence: 0}, nil
}

func (k *KeywordStrategy) objectNoun(text string) string {
	if !k.DeriveObjectNoun {
		return defaultObjectNoun
	}
	m := nounPattern.FindStringSubmatch(text)
	if m == nil {
		return defaultObjectNoun
	}
	return strings.ToLower(m[1])
}
