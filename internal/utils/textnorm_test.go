package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeText(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"whitespace", "  30평 아파트,   침실 2개 ", "30평 아파트, 침실 2개"},
		{"case", "Modern HOUSE", "modern house"},
		{"full width digits", "３０평", "30평"},
		{"newlines and tabs", "south\tfacing\nliving room", "south facing living room"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, CanonicalizeText(tt.a), CanonicalizeText(tt.b))
		})
	}
}

func TestCanonicalizeTextNFC(t *testing.T) {
	decomposed := "\u1100\u1161"
	assert.Equal(t, "가", CanonicalizeText(decomposed))
}

func TestContentHash(t *testing.T) {
	h := ContentHash("a", "b")
	assert.Len(t, h, 64)
	assert.Equal(t, h, ContentHash("a", "b"))
	assert.NotEqual(t, ContentHash("ab", "c"), ContentHash("a", "bc"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", TruncateRunes("abc", 5))
	assert.Equal(t, "침실", TruncateRunes("침실거실", 2))
	assert.Equal(t, "남향 거...", TruncateRunes("남향 거실과 침실", 7))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}
