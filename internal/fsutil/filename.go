// Package fsutil builds file names for run outputs.
package fsutil

import "strings"

const maxFilenameLen = 128

// SanitizeFilename makes a file name component from an arbitrary string,
// such as an interaction fingerprint. Runs of characters other than ASCII
// letters, digits, dot, underscore or dash become one underscore. The
// result is at most 128 bytes and never empty.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
