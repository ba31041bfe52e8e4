package cursor

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	separatorRe = regexp.MustCompile(`[_\s]+`)
	invalidRe   = regexp.MustCompile(`[^a-zA-Z0-9-]`)
	camelRe     = regexp.MustCompile(`([a-z])([A-Z])`)
	dashesRe    = regexp.MustCompile(`-+`)
)

// ToKebabCase turns a display name into a file-name-safe slug:
// "Code Review & QA" becomes "code-review-and-qa", "myTool" becomes "my-tool".
func ToKebabCase(name string) string {
	name = strings.ReplaceAll(name, "&", "and")
	name = separatorRe.ReplaceAllString(name, "-")
	name = invalidRe.ReplaceAllString(name, "")
	name = camelRe.ReplaceAllString(name, "$1-$2")
	name = dashesRe.ReplaceAllString(name, "-")
	return strings.Trim(strings.ToLower(name), "-")
}

// titleCase upper-cases the first letter of every word and lower-cases the
// rest, where a word starts after any non-letter.
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

// displayName turns a file stem like "bug-hunter" or "api_notes" into "Bug Hunter".
func displayName(stem string) string {
	return titleCase(strings.NewReplacer("-", " ", "_", " ").Replace(stem))
}
