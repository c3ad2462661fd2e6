package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitSpacesRequests(t *testing.T) {
	t.Parallel()

	// 600 per minute = one token every 100ms.
	l := New(Config{RequestsPerMinute: 600, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "gemini"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "gemini"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerMinute: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "gemini"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "ollama"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "ollama must not be blocked by gemini")
}

func TestLimiterDisabledAndCanceled(t *testing.T) {
	t.Parallel()

	unlimited := New(Config{})
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Wait(context.Background(), "k"))
	}

	var nilLimiter *Limiter
	require.NoError(t, nilLimiter.Wait(context.Background(), "k"))

	slow := New(Config{RequestsPerMinute: 1, Burst: 1})
	require.NoError(t, slow.Wait(context.Background(), "k"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, slow.Wait(ctx, "k"))
}
