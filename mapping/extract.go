package mapping

import "strings"

// extractJSON returns the first JSON object or array in model text with
// line comments and trailing commas removed. A fenced code block wins over
// the surrounding prose. It returns "" when no balanced value is found.
func extractJSON(content string) string {
	if body, ok := fencedBlock(content); ok {
		if v := balancedValue(body); v != "" {
			return dropTrailingCommas(stripComments(v))
		}
	}
	if v := balancedValue(content); v != "" {
		return dropTrailingCommas(stripComments(v))
	}
	return ""
}

// fencedBlock returns the text inside the first ``` fence. An unclosed
// fence runs to the end of content.
func fencedBlock(content string) (string, bool) {
	start := strings.Index(content, "```")
	if start < 0 {
		return "", false
	}
	body := content[start+3:]
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body, true
}

// balancedValue returns s from the first '{' or '[' to its matching closer.
// Brackets inside strings and // comments are ignored.
func balancedValue(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}

	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '/':
			if i+1 < len(s) && s[i+1] == '/' {
				if nl := strings.IndexByte(s[i:], '\n'); nl >= 0 {
					i += nl
				} else {
					return ""
				}
			}
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != ch {
				return ""
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// stripComments removes // comments outside string values.
func stripComments(s string) string {
	if !strings.Contains(s, "//") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			b.WriteByte(ch)
			continue
		}
		if ch == '/' && i+1 < len(s) && s[i+1] == '/' {
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				break
			}
			i += nl - 1
			continue
		}
		if ch == '"' {
			inString = true
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// dropTrailingCommas removes commas directly followed, after whitespace,
// by a closing bracket.
func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			b.WriteByte(ch)
			continue
		}
		if ch == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		if ch == '"' {
			inString = true
		}
		b.WriteByte(ch)
	}
	return b.String()
}
