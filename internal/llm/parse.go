package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseResponse extracts the JSON payload from raw model output.
// Models wrap answers in code fences or prose, so the first balanced
// object is located and decoded. Undecodable output fails closed with
// no creditors rather than guessing.
func ParseResponse(raw string) (*Response, error) {
	cleaned := stripFences(raw)
	blob, ok := firstJSONObject(cleaned)
	if !ok {
		return &Response{}, fmt.Errorf("no JSON object in model output")
	}

	var resp Response
	if err := json.Unmarshal([]byte(blob), &resp); err != nil {
		return &Response{}, fmt.Errorf("failed to parse model output: %w", err)
	}
	return &resp, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// firstJSONObject returns the first balanced {...} span, tracking
// strings so braces inside values do not miscount.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
