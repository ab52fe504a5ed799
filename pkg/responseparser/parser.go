// Package responseparser extracts a JSON object from an LLM's free-form text
// response. Extraction is tried in order — fenced code block, bare object
// scan, whole string — and failure is reported as a plain error so callers
// can treat it as a recoverable event rather than a panic (§9 Design Notes).
package responseparser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlockRE = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// Extract parses raw into a JSON object (map[string]any). It tries, in
// order: the first fenced ```json``` or ``` ``` code block, then the first
// balanced-brace `{...}` substring found by bracket counting, then the
// whole trimmed string.
func Extract(raw string) (map[string]any, error) {
	if match := fencedBlockRE.FindStringSubmatch(raw); match != nil {
		if m, err := tryParse(match[1]); err == nil {
			return m, nil
		}
	}

	if candidate, ok := firstBalancedObject(raw); ok {
		if m, err := tryParse(candidate); err == nil {
			return m, nil
		}
	}

	if m, err := tryParse(raw); err == nil {
		return m, nil
	}

	return nil, fmt.Errorf("could not extract a JSON object from response (%d bytes)", len(raw))
}

func tryParse(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// firstBalancedObject scans for the first top-level `{...}` span using
// brace depth counting, ignoring braces inside string literals.
func firstBalancedObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, r := range s {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}
