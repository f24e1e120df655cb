package fingerprint

import "strings"

// Normalize maps text onto [A-Za-z0-9_-]. Every run of other characters
// becomes a single hyphen, then leading and trailing hyphens are removed.
// Runs of literal hyphens are kept as they are, except at the edges.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inRun := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if isSlugByte(c) {
			b.WriteByte(c)
			inRun = false
			continue
		}
		if !inRun {
			b.WriteByte('-')
			inRun = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func isSlugByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') || c == '_' || c == '-'
}
