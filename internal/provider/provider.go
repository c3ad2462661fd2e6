// Package provider defines the text-generation backends used by the formatter.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Names of the supported providers.
const (
	Gemini = "gemini"
	Ollama = "ollama"
)

// Provider turns a prompt into generated text. Implementations must be safe
// for concurrent use.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// StatusError reports a non-success response from a provider API.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Message)
}

const resourceExhausted = "RESOURCE_EXHAUSTED"

// Matches a standalone 429 status in transport error text, so 1429 or 4290
// do not count.
var statusTooManyToken = regexp.MustCompile(`(^|[^0-9A-Za-z])429([^0-9A-Za-z]|$)`)

// IsRateLimited reports whether err means the provider throttled the request.
// A StatusError is judged by its code and RESOURCE_EXHAUSTED status only, since
// its message is server body text. Other errors match RESOURCE_EXHAUSTED or a
// standalone 429 token.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || strings.Contains(statusErr.Message, resourceExhausted)
	}
	msg := err.Error()
	return strings.Contains(msg, resourceExhausted) || statusTooManyToken.MatchString(msg)
}
