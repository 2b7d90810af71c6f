package translate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/WessleyAI/patentrag/engine/domain"
)

type response struct {
	Translation *string `json:"translation"`
}

// ParseResponse extracts the translated text from a raw completion. It accepts
// a JSON object with a "translation" field (bare, inside a ``` fence, or
// embedded in surrounding prose) and otherwise falls back to the trimmed text.
// An empty result is ErrMalformedResponse.
func ParseResponse(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("translate: %w: empty response", domain.ErrMalformedResponse)
	}

	for _, candidate := range jsonCandidates(s) {
		var r response
		if err := json.Unmarshal([]byte(candidate), &r); err != nil || r.Translation == nil {
			continue
		}
		text := strings.TrimSpace(*r.Translation)
		if text == "" {
			return "", fmt.Errorf("translate: %w: empty translation field", domain.ErrMalformedResponse)
		}
		return text, nil
	}

	// A reply that opens like JSON but never decodes is a broken contract,
	// not a plain-text translation.
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "```") {
		return "", fmt.Errorf("translate: %w: undecodable JSON reply", domain.ErrMalformedResponse)
	}
	return s, nil
}

func jsonCandidates(s string) []string {
	var out []string
	if strings.HasPrefix(s, "{") {
		out = append(out, s)
	}
	if body, ok := fenced(s); ok {
		out = append(out, body)
	}
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		out = append(out, s[i:j+1])
	}
	return out
}

func fenced(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
