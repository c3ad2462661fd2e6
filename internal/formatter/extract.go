package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// ExtractJSON pulls a JSON object out of a free-form reply. A fenced block
// wins when present; if strict parsing fails the text between the first '{'
// and the last '}' is tried.
func ExtractJSON(text string) (json.RawMessage, error) {
	candidate := strings.TrimSpace(text)
	if strings.Contains(candidate, "```") {
		if m := fencedBlock.FindStringSubmatch(candidate); m != nil {
			candidate = m[1]
		}
	}

	raw := []byte(candidate)
	if !json.Valid(raw) {
		start := strings.IndexByte(candidate, '{')
		end := strings.LastIndexByte(candidate, '}')
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: %s", ErrParse, truncate(candidate, 120))
		}
		raw = []byte(candidate[start : end+1])
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%w: %s", ErrParse, truncate(candidate, 120))
		}
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrShape)
	}
	return raw, nil
}

// DecodeRecord extracts, decodes and validates a formatted record.
func DecodeRecord(text string) (*FormattedRecord, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var rec FormattedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShape, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	rec.Title = CleanTitle(rec.Title)
	return &rec, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
