package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MaxFailureSnippet bounds the raw text carried by a ParseFailure
const MaxFailureSnippet = 512

// maxCandidates bounds how many brace positions are tried in one response
const maxCandidates = 64

var (
	fencePattern       = regexp.MustCompile("(?s)```(?:json|JSON|javascript)?\\s*(.+?)\\s*```")
	trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRegex   = regexp.MustCompile(`([{,]\s*)([\p{L}_][\p{L}\p{N}_]*)(\s*:)`)
	controlCharsRegex  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
	smartQuoteReplacer = strings.NewReplacer("“", `"`, "”", `"`, "„", `"`, "‘", "'", "’", "'")
)

// ParsedPayload is a JSON value located inside an AI response
type ParsedPayload struct {
	Value    any    // decoded object or array
	Raw      string // the JSON text that decoded successfully
	Strategy string // direct, fence, scan or repair
}

// Object returns the payload as an object. An array payload yields its first
// object element, which is how models occasionally wrap a single answer.
func (p *ParsedPayload) Object() (map[string]any, bool) {
	if p == nil {
		return nil, false
	}
	switch v := p.Value.(type) {
	case map[string]any:
		return v, true
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				return m, true
			}
		}
	}
	return nil, false
}

// ParseFailure describes why no JSON could be recovered
type ParseFailure struct {
	Reason  string
	Snippet string
}

func (f *ParseFailure) Error() string {
	return fmt.Sprintf("parse failure: %s: %q", f.Reason, f.Snippet)
}

// ParseResult holds exactly one of Payload or Failure
type ParseResult struct {
	Payload *ParsedPayload
	Failure *ParseFailure
}

// OK reports whether a payload was recovered
func (r ParseResult) OK() bool {
	return r.Payload != nil
}

// ParseResponse locates the first well-formed JSON object or array in AI output
// that may contain:
// - Pure JSON
// - JSON wrapped in markdown code blocks (```json ... ```)
// - JSON with leading prose or trailing commentary
// - Smart quotes, trailing commas, unquoted keys or single-quoted strings
//
// It never panics; bad input is reported as a ParseFailure.
func ParseResponse(input string) (result ParseResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ParseResult{Failure: &ParseFailure{
				Reason:  fmt.Sprintf("parser panic: %v", r),
				Snippet: TruncateRunes(input, MaxFailureSnippet),
			}}
		}
	}()

	s := strings.TrimSpace(strings.TrimPrefix(input, "\ufeff"))
	if s == "" {
		return ParseResult{Failure: &ParseFailure{Reason: "empty response"}}
	}

	if p := locateJSON(s); p != nil {
		return ParseResult{Payload: p}
	}

	// Repair only after every strict strategy failed, so well-formed strings
	// containing quotes or commas are never rewritten.
	if repaired := cleanAndFixJSON(s); repaired != s {
		if p := locateJSON(repaired); p != nil {
			p.Strategy = "repair"
			return ParseResult{Payload: p}
		}
	}

	return ParseResult{Failure: &ParseFailure{
		Reason:  "no well-formed JSON object or array found",
		Snippet: TruncateRunes(s, MaxFailureSnippet),
	}}
}

func locateJSON(s string) *ParsedPayload {
	if v, ok := decodeComposite(s); ok {
		return &ParsedPayload{Value: v, Raw: s, Strategy: "direct"}
	}

	for _, block := range extractFromMarkdown(s) {
		if v, ok := decodeComposite(block); ok {
			return &ParsedPayload{Value: v, Raw: block, Strategy: "fence"}
		}
		if snippet, v, ok := scanForJSON(block); ok {
			return &ParsedPayload{Value: v, Raw: snippet, Strategy: "fence"}
		}
	}

	if snippet, v, ok := scanForJSON(s); ok {
		return &ParsedPayload{Value: v, Raw: snippet, Strategy: "scan"}
	}
	return nil
}

// decodeComposite accepts only objects and arrays; bare scalars are not payloads
func decodeComposite(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	}
	return nil, false
}

// extractFromMarkdown returns the contents of every fenced code block in order
func extractFromMarkdown(input string) []string {
	matches := fencePattern.FindAllStringSubmatch(input, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			blocks = append(blocks, strings.TrimSpace(m[1]))
		}
	}
	return blocks
}

// scanForJSON tries each '{' or '[' position left to right and returns the first
// balanced snippet that decodes
func scanForJSON(input string) (string, any, bool) {
	tried := 0
	for i := 0; i < len(input) && tried < maxCandidates; i++ {
		var open, close byte
		switch input[i] {
		case '{':
			open, close = '{', '}'
		case '[':
			open, close = '[', ']'
		default:
			continue
		}
		tried++
		snippet := extractBalancedBraces(input[i:], open, close)
		if snippet == "" {
			continue
		}
		if v, ok := decodeComposite(snippet); ok {
			return snippet, v, true
		}
	}
	return "", nil, false
}

// extractBalancedBraces extracts content with balanced braces, starting at input[0]
func extractBalancedBraces(input string, open, close byte) string {
	depth := 0
	inString := false
	escape := false

	for i := 0; i < len(input); i++ {
		ch := input[i]
		if escape {
			escape = false
			continue
		}
		if ch == '\\' && inString {
			escape = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return input[:i+1]
			}
		}
	}
	return ""
}

// cleanAndFixJSON attempts to fix common JSON formatting issues
func cleanAndFixJSON(input string) string {
	s := smartQuoteReplacer.Replace(input)
	s = trailingCommaRegex.ReplaceAllString(s, "$1")
	s = fixSingleQuotes(s)
	s = unquotedKeyRegex.ReplaceAllString(s, `$1"$2"$3`)
	return controlCharsRegex.ReplaceAllString(s, "")
}

// fixSingleQuotes converts single-quoted strings outside double-quoted strings
// into double-quoted ones. An apostrophe inside a word is left alone.
func fixSingleQuotes(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	inDouble, inSingle, escape := false, false, false
	var prev rune // last non-space rune written outside strings

	for _, ch := range input {
		switch {
		case escape:
			if inSingle && ch == '\'' {
				b.WriteRune('\'')
			} else {
				b.WriteRune('\\')
				b.WriteRune(ch)
			}
			escape = false
			continue
		case ch == '\\' && (inDouble || inSingle):
			escape = true
			continue
		}

		switch {
		case inDouble:
			if ch == '"' {
				inDouble = false
			}
			b.WriteRune(ch)
		case inSingle:
			switch ch {
			case '\'':
				inSingle = false
				b.WriteRune('"')
			case '"':
				b.WriteString(`\"`)
			default:
				b.WriteRune(ch)
			}
		case ch == '"':
			inDouble = true
			b.WriteRune(ch)
		case ch == '\'' && (prev == 0 || strings.ContainsRune("{[,:", prev)):
			inSingle = true
			b.WriteRune('"')
		default:
			b.WriteRune(ch)
		}

		if !inDouble && !inSingle && ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r' {
			prev = ch
		}
	}
	if escape {
		b.WriteRune('\\')
	}
	return b.String()
}
