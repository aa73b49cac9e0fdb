package gemini

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"togglbot/internal/domain"
)

// rawIntent is the loose shape the model answers with. Models vary between
// duration_minutes and duration_seconds, and older prompt captures used
// "add_entry"/"none"; all of that is normalized here at the boundary.
type rawIntent struct {
	Action          string  `json:"action"`
	Description     string  `json:"description"`
	DurationMinutes float64 `json:"duration_minutes"`
	DurationSeconds float64 `json:"duration_seconds"`
	ProjectID       int64   `json:"project_id"`
}

// coerceIntent validates a model response against the fixed action
// vocabulary. Any shape that cannot be coerced fails with
// domain.ErrUnrecognizedIntent rather than propagating loosely-typed data.
func coerceIntent(content string) (domain.Intent, error) {
	candidate, ok := extractJSON(content)
	if !ok {
		return domain.Intent{}, fmt.Errorf("%w: no JSON object in response", domain.ErrUnrecognizedIntent)
	}

	var raw rawIntent
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		if err2 := json.Unmarshal([]byte(sanitizeJSONEscapes(candidate)), &raw); err2 != nil {
			return domain.Intent{}, fmt.Errorf("%w: %v", domain.ErrUnrecognizedIntent, err)
		}
	}

	action, ok := domain.ParseAction(raw.Action)
	if !ok {
		return domain.Intent{}, fmt.Errorf("%w: action %q not in vocabulary", domain.ErrUnrecognizedIntent, raw.Action)
	}

	minutes := raw.DurationMinutes
	if minutes == 0 && raw.DurationSeconds > 0 {
		minutes = raw.DurationSeconds / 60
	}

	return domain.Intent{
		Action:          action,
		Description:     strings.TrimSpace(raw.Description),
		DurationMinutes: int(math.Round(minutes)),
		ProjectID:       raw.ProjectID,
	}, nil
}

// extractJSON pulls a JSON object out of model output. Handles pure JSON,
// code-fenced JSON, and JSON embedded in surrounding prose.
func extractJSON(content string) (string, bool) {
	content = strings.TrimSpace(content)

	// Strip markdown code fences if present.
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	if strings.HasPrefix(content, "{") && strings.HasSuffix(content, "}") {
		return content, true
	}

	if start, end := findJSONBounds(content); start >= 0 && end > start {
		return content[start:end], true
	}
	return "", false
}

// findJSONBounds locates the first top-level JSON object ({}) in s.
// Returns the start index and end+1 index, or (-1, -1) if not found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return -1, -1
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++ // skip escaped character
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

// sanitizeJSONEscapes fixes invalid JSON escape sequences produced by some
// models. Valid JSON escapes: \", \\, \/, \b, \f, \n, \r, \t, \uXXXX.
// Invalid ones are corrected by dropping the backslash.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' && (i == 0 || s[i-1] != '\\') {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			next := s[i+1]
			switch next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
			default:
				continue
			}
		} else {
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}
