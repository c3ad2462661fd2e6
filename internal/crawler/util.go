package crawler

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[\\/:*?"<>|\s]+`)

// EncodeJSON renders v as two-space indented JSON with non-ASCII text and
// HTML characters left unescaped.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SafeFileComponent replaces path separators, reserved characters and
// whitespace so raw can be embedded in a file name. Non-ASCII text is kept.
func SafeFileComponent(raw string) string {
	cleaned := strings.Trim(invalidFilenameChars.ReplaceAllString(strings.TrimSpace(raw), "_"), "_.")
	if cleaned == "" {
		return "all"
	}
	return cleaned
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}
