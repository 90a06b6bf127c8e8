// Package partialjson decides whether streamed tool-call arguments form a
// complete JSON object yet.
package partialjson

import (
	"encoding/json"
	"strings"
)

// IsComplete reports whether text is structurally balanced and parses as
// JSON. The brace scan runs first so a long argument stream is not fully
// parsed on every fragment.
func IsComplete(text string) bool {
	if !strings.Contains(text, "{") || !strings.Contains(text, "}") {
		return false
	}
	depth, ok := Depth(text)
	if !ok || depth != 0 {
		return false
	}
	return json.Valid([]byte(text))
}

// Depth scans text and returns the brace depth at its end. Braces inside
// quoted strings are ignored. ok is false when a closing brace has no
// matching opener.
func Depth(text string) (depth int, ok bool) {
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return depth, false
			}
		}
	}
	return depth, true
}
