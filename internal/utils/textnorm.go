package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// CanonicalizeText produces the cache-key form of free text: NFC normalized,
// full-width characters folded, case folded and whitespace collapsed.
func CanonicalizeText(s string) string {
	s = norm.NFC.String(s)
	s = width.Fold.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// FoldWidth maps full-width digits and latin letters to their ASCII forms
func FoldWidth(s string) string {
	return width.Fold.String(norm.NFC.String(s))
}

// ContentHash returns the hex SHA-256 digest of the given parts. Parts are
// separated by a unit separator so ("ab","c") and ("a","bc") differ.
func ContentHash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TruncateRunes truncates s to at most maxRunes runes. When s is cut and there
// is room, the last three runes are replaced by "...".
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	keep, suffix := maxRunes, ""
	if maxRunes > 3 {
		keep, suffix = maxRunes-3, "..."
	}
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + suffix
		}
		n++
	}
	return s
}
