package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyCompletion = errors.New("provider returned an empty completion")

// ProviderError is returned when the adapter exhausts its repair budget or
// the outbound call itself fails. Raw carries the last provider response for
// diagnostics; it is surfaced as data, never as a panic.
type ProviderError struct {
	Op  string
	Raw string
	Err error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("llm %s failed", e.Op)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// parseStructured validates and parses one structured completion body. The
// body must, after fence stripping, begin with '{' and parse as a JSON
// object. The needsConfirmation field is normalized in place. Parsing an
// already-valid body is idempotent.
func parseStructured(body string) (map[string]interface{}, error) {
	body = strings.TrimSpace(stripFences(body))

	if !strings.HasPrefix(body, "{") {
		return nil, fmt.Errorf("structured response does not start with '{': %q", truncate(body, 80))
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse structured response: %w", err)
	}

	normalizeConfirmFlag(payload)

	return payload, nil
}

// stripFences removes a wrapping markdown code fence, with or without a
// language tag, leaving other content untouched.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// normalizeConfirmFlag coerces a needsConfirmation field that arrived as a
// string or other non-boolean type. "true"/"1"/"yes" (case-insensitive) map
// to true; every other non-boolean value maps to false.
func normalizeConfirmFlag(payload map[string]interface{}) {
	v, ok := payload["needsConfirmation"]
	if !ok {
		return
	}

	switch val := v.(type) {
	case bool:
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes":
			payload["needsConfirmation"] = true
		default:
			payload["needsConfirmation"] = false
		}
	default:
		payload["needsConfirmation"] = false
	}
}

// decodePayload maps the parsed object onto the caller's typed struct.
func decodePayload(payload map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to re-encode structured payload: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode structured payload: %w", err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
