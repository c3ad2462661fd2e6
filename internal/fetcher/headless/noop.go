package headless

import (
	"context"
)

// Noop implements crawler.LikesCounter when headless browsing is disabled.
type Noop struct{}

// NewNoop creates a new Noop counter.
func NewNoop() *Noop {
	return &Noop{}
}

// Count always reports the count as unavailable.
func (Noop) Count(_ context.Context, _ string) *int {
	return nil
}
