package mapping

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

var (
	separatorPattern  = regexp.MustCompile(`[_\-]+`)
	nonWordPattern    = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeText lowercases s, turns underscore and hyphen runs into spaces,
// drops every character outside [a-z0-9 whitespace] and collapses whitespace.
func NormalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = separatorPattern.ReplaceAllString(s, " ")
	s = nonWordPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ratio is the SequenceMatcher similarity of two strings in [0,1].
func ratio(a, b string) float64 {
	return difflib.NewMatcher(splitChars(a), splitChars(b)).Ratio()
}

func splitChars(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "")
}

// NameSimilarity returns the best ratio between the normalized text and
// each normalized value. Values that normalize to empty are skipped; the
// result is 0 when nothing remains.
func NameSimilarity(text string, values ...string) float64 {
	normalized := NormalizeText(text)
	best := 0.0
	for _, v := range values {
		nv := NormalizeText(v)
		if nv == "" {
			continue
		}
		if r := ratio(normalized, nv); r > best {
			best = r
		}
	}
	return best
}
