package media

import "strings"

const maxNameChars = 50

// OutputName derives a filesystem-safe output filename from the encoded
// text. The first 50 characters are kept, anything outside
// [a-zA-Z0-9_-] becomes an underscore, and the extension follows the
// output kind. Deterministic for identical input.
func OutputName(text string, animated bool) string {
	runes := []rune(text)
	if len(runes) > maxNameChars {
		runes = runes[:maxNameChars]
	}

	var b strings.Builder
	b.Grow(len(runes))
	for _, r := range runes {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	if animated {
		return b.String() + ".gif"
	}
	return b.String() + ".png"
}
