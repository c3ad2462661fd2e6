package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimited(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 429", &StatusError{Provider: Ollama, Code: 429}, true},
		{"wrapped status 429", fmt.Errorf("generate: %w", &StatusError{Provider: Ollama, Code: 429}), true},
		{"status 500", &StatusError{Provider: Ollama, Code: 500}, false},
		{"resource exhausted text", errors.New("Error 429, Status: RESOURCE_EXHAUSTED"), true},
		{"plain failure", errors.New("connection refused"), false},
		{"status 400 body mentions 429", &StatusError{Provider: Ollama, Code: 400, Message: "item 4429 has 429 likes"}, false},
		{"status 503 resource exhausted", &StatusError{Provider: Gemini, Code: 503, Message: "RESOURCE_EXHAUSTED"}, true},
		{"transport text with 429 token", errors.New("unexpected status 429 from upstream"), true},
		{"digits containing 429", errors.New("listing has 1429 likes and costs 4290 yen"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRateLimited(tt.err))
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ollama: status 503", (&StatusError{Provider: Ollama, Code: 503}).Error())
	assert.Equal(t, "gemini: status 400: bad key", (&StatusError{Provider: Gemini, Code: 400, Message: "bad key"}).Error())
}
