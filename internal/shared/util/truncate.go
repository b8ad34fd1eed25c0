package util

import "unicode/utf8"

// TruncateUTF8 cuts s to at most max bytes, backing off to the nearest rune
// boundary so the result stays valid UTF-8.
func TruncateUTF8(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
