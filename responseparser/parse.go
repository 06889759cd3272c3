// Package responseparser extracts and validates a JSON value out of an
// LLM's free-form text reply.
package responseparser

import (
	"encoding/json"
	"strings"

	"github.com/dhyansraj/mcp-mesh/mesh"
)

// Parse extracts JSON from content and validates it against schema when
// one is given. With no schema, the raw string is returned unchanged and
// no extraction is attempted.
func Parse(content string, schema json.RawMessage) (any, error) {
	if len(schema) == 0 {
		return content, nil
	}

	extracted, ok := ExtractJSON(content)
	if !ok {
		return nil, &mesh.ResponseParseError{
			RawContent:  content,
			Diagnostics: []string{"no JSON object or array could be extracted from the response"},
		}
	}

	var decoded any
	if err := json.Unmarshal([]byte(extracted), &decoded); err != nil {
		return nil, &mesh.ResponseParseError{
			RawContent:  content,
			Diagnostics: []string{"extracted text is not valid JSON: " + err.Error()},
		}
	}

	if diags, err := ValidateAgainstSchema(schema, []byte(extracted)); err != nil {
		diags = append(diags, err.Error())
		return nil, &mesh.ResponseParseError{RawContent: content, Diagnostics: diags}
	}

	return decoded, nil
}

// ExtractJSON tries three extraction passes in order: a fenced code block
// (optionally labeled "json"), then a progressive balanced-brace scan for
// the first valid JSON object substring, then the same for arrays.
// Returns false when none of the three passes finds valid JSON.
func ExtractJSON(content string) (string, bool) {
	if block, ok := extractFencedBlock(content); ok {
		return block, true
	}
	if obj, ok := extractBalanced(content, '{', '}'); ok {
		return obj, true
	}
	if arr, ok := extractBalanced(content, '[', ']'); ok {
		return arr, true
	}
	return "", false
}

// extractFencedBlock finds the first ``` fenced block (optionally labeled
// "json" right after the opening fence) whose contents parse as valid JSON.
func extractFencedBlock(content string) (string, bool) {
	const fence = "```"
	start := strings.Index(content, fence)
	for start != -1 {
		rest := content[start+len(fence):]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		rest = strings.TrimPrefix(rest, "\n")
		end := strings.Index(rest, fence)
		if end == -1 {
			return "", false
		}
		body := strings.TrimSpace(rest[:end])
		if isValidJSON(body) {
			return body, true
		}
		closeAt := len(content) - len(rest) + end // closing fence's offset in content
		next := strings.Index(content[closeAt+len(fence):], fence)
		if next == -1 {
			return "", false
		}
		start = closeAt + len(fence) + next
	}
	return "", false
}

// extractBalanced scans content left to right for the first substring
// beginning with open that is a balanced bracket run (respecting string
// literals so braces inside quoted text don't unbalance the count) and
// that parses as valid JSON once closed.
func extractBalanced(content string, open, close byte) (string, bool) {
	for i := 0; i < len(content); i++ {
		if content[i] != open {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(content); j++ {
			c := content[j]
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
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					candidate := content[i : j+1]
					if isValidJSON(candidate) {
						return candidate, true
					}
					j = len(content) // abandon this start, advance i past it below
				}
			}
		}
	}
	return "", false
}

func isValidJSON(s string) bool {
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}
