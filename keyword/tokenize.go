// Text and URL normalization, for comparing content between items.
package keyword

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)

// Splits free-form text in to tokens, including lower-case, unicode normalization, and removal of diacritics.
func TokenizeText(text string) []string {
	// the transformer is stateful, so it is constructed per call
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	bare := strings.ToLower(nonTokenChars.ReplaceAllString(text, " "))
	normalized, _, err := transform.String(normFunc, bare)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		normalized = bare
	}
	return strings.Fields(normalized)
}

// Normalized form of free-form text: tokens joined by single spaces. Texts which differ only in case, punctuation, whitespace or diacritics have the same fingerprint.
func Fingerprint(text string) string {
	return strings.Join(TokenizeText(text), " ")
}

// Jaccard similarity of the token sets of two texts, as a percentage (0-100). Two empty texts are identical.
func Similarity(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 100
	}
	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return 100 * float64(shared) / float64(union)
}

func tokenSet(text string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range TokenizeText(text) {
		out[tok] = true
	}
	return out
}
