package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SameName reports whether two names refer to the same person. Comparison is
// case-insensitive using Unicode case folding.
func SameName(a, b string) bool {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(a)) == fold.String(strings.TrimSpace(b))
}

// SameImage reports whether two names map to the same reference image file.
// File systems may ignore case, so the file names are compared
// case-insensitively.
func SameImage(a, b string) bool {
	return strings.EqualFold(ImageFileName(a), ImageFileName(b))
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// ImageFileName returns the reference image file name for a person. The name
// is kept readable but stripped of diacritics and anything that is not safe in
// a file name.
func ImageFileName(name string) string {
	name = RemoveDiacritics(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	base := strings.Trim(b.String(), ". ")
	if base == "" {
		base = "_"
	}
	return base + ".jpg"
}
