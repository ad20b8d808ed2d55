package registry

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const DefaultSlugMaxLen = 20

var (
	slugInvalid  = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSeparate = regexp.MustCompile(`[\s-]+`)
)

// Slugify folds text to a lowercase ASCII identifier of at most maxLen bytes.
// "Xin chào" becomes "xin-chao"; text with nothing usable becomes "label".
func Slugify(text string, maxLen int) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}

	s := strings.ToLower(folded)
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugSeparate.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	if s == "" {
		return "label"
	}
	return s
}
