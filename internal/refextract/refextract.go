// Package refextract derives product reference codes from media
// filenames. A reference is the join key between images and the
// catalog records they belong to.
package refextract

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Matcher is one pattern strategy in the extraction cascade. Matchers
// are evaluated in order and the first hit wins; patterns are never
// combined.
type Matcher interface {
	Name() string
	Match(stem string) (string, bool)
}

type regexMatcher struct {
	name  string
	re    *regexp.Regexp
	group int
	// requireDigit rejects matches that carry no digit at all, so a
	// leading word like "image" is not mistaken for a product code.
	requireDigit bool
}

func (m regexMatcher) Name() string { return m.name }

func (m regexMatcher) Match(stem string) (string, bool) {
	groups := m.re.FindStringSubmatch(stem)
	if groups == nil {
		return "", false
	}
	tok := groups[m.group]
	if m.requireDigit && !strings.ContainsAny(tok, "0123456789") {
		return "", false
	}
	return tok, true
}

// cascade lists the patterns in precedence order:
//  1. leading code token at the start of the stem
//  2. a 13-digit run anywhere (EAN/GTIN-13 candidate)
//  3. a token delimited by _ or - on both sides
var cascade = []Matcher{
	regexMatcher{
		name:         "leading_code",
		re:           regexp.MustCompile(`^([A-Za-z0-9-]{3,20})`),
		group:        1,
		requireDigit: true,
	},
	regexMatcher{
		name:  "ean13",
		re:    regexp.MustCompile(`([0-9]{13})`),
		group: 1,
	},
	regexMatcher{
		name:  "delimited_code",
		re:    regexp.MustCompile(`[_-]([A-Za-z0-9]{3,20})[_-]`),
		group: 1,
	},
}

// Extract derives a product reference from an image or document
// filename. The extension is stripped, the pattern cascade is applied
// in order, and the first match is returned upper-cased. The second
// return value is false when no pattern matches; Extract never fails.
func Extract(filename string) (string, bool) {
	stem := Stem(filename)
	if stem == "" {
		return "", false
	}
	for _, m := range cascade {
		if tok, ok := m.Match(stem); ok {
			return strings.ToUpper(tok), true
		}
	}
	return "", false
}

// Stem returns the filename without directory or extension.
func Stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
