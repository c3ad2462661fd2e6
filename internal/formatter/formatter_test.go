package formatter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/booth-harvest/internal/provider"
)

type scriptedProvider struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	if len(p.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return r.text, r.err
}

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.delays = append(p.delays, d)
	p.mu.Unlock()
	return ctx.Err()
}

var rateLimited = &provider.StatusError{Provider: "scripted", Code: 429}

func TestFormatRateLimitBackoff(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{replies: []reply{{err: rateLimited}, {err: rateLimited}, {text: validReply}}}
	pauser := &recordingPauser{}
	f, err := New(prov, Config{}, nil, WithPauser(pauser))
	require.NoError(t, err)

	rec, err := f.Format(context.Background(), json.RawMessage(`{"id":"1"}`))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "1", rec.ID)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, pauser.delays)
	assert.Len(t, prov.prompts, 3)
}

func TestFormatOtherFailuresUseShortBackoff(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{replies: []reply{{text: "not json at all"}, {err: errors.New("connection reset")}, {text: validReply}}}
	pauser := &recordingPauser{}
	f, err := New(prov, Config{}, nil, WithPauser(pauser))
	require.NoError(t, err)

	rec, err := f.Format(context.Background(), json.RawMessage(`{"id":"1"}`))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, pauser.delays)
}

func TestFormatParseFailureQuotingDigitsUsesShortBackoff(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{replies: []reply{
		{text: "Sorry, this listing has 1429 likes and I cannot decide."},
		{text: "429 RESOURCE_EXHAUSTED is not valid JSON either"},
		{text: validReply},
	}}
	pauser := &recordingPauser{}
	f, err := New(prov, Config{}, nil, WithPauser(pauser))
	require.NoError(t, err)

	rec, err := f.Format(context.Background(), json.RawMessage(`{"id":"1"}`))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, pauser.delays)
}

func TestFormatExhaustionDropsRecord(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{replies: []reply{{err: rateLimited}, {err: rateLimited}, {err: rateLimited}}}
	pauser := &recordingPauser{}
	f, err := New(prov, Config{Retries: 3, BackoffFactor: 3}, nil, WithPauser(pauser))
	require.NoError(t, err)

	rec, err := f.Format(context.Background(), json.RawMessage(`{"id":"1"}`))
	require.NoError(t, err)
	assert.Nil(t, rec)
	// No wait after the final attempt.
	assert.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second}, pauser.delays)
}

func TestFormatCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	prov := &scriptedProvider{replies: []reply{{err: errors.New("boom")}}}
	f, err := New(prov, Config{}, nil, WithPauser(pauserFunc(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	})))
	require.NoError(t, err)

	rec, err := f.Format(ctx, json.RawMessage(`{"id":"1"}`))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rec)
}

func TestFormatRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{}
	f, err := New(prov, Config{}, nil)
	require.NoError(t, err)

	_, err = f.Format(context.Background(), json.RawMessage(`{broken`))
	require.Error(t, err)
	assert.Empty(t, prov.prompts)
}

func TestFormatUsesCustomExamples(t *testing.T) {
	t.Parallel()

	prov := &scriptedProvider{replies: []reply{{text: validReply}}}
	examples := []Example{{Input: json.RawMessage(`{"id":"x"}`), Output: json.RawMessage(`{"id":"x","game_type":"TRPG"}`)}}
	f, err := New(prov, Config{}, nil, WithExamples(examples), WithPauser(&recordingPauser{}))
	require.NoError(t, err)

	_, err = f.Format(context.Background(), json.RawMessage(`{"id":"1"}`))
	require.NoError(t, err)
	require.Len(t, prov.prompts, 1)
	assert.Contains(t, prov.prompts[0], `"id": "x"`)
	assert.NotContains(t, prov.prompts[0], "2867487")
}

func TestNewRequiresProvider(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{}, nil)
	require.Error(t, err)
}

type pauserFunc func(ctx context.Context, d time.Duration) error

func (f pauserFunc) Pause(ctx context.Context, d time.Duration) error { return f(ctx, d) }
