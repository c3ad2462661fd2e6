package formatter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/booth-harvest/internal/crawler"
	"github.com/JakeFAU/booth-harvest/internal/metrics"
	"github.com/JakeFAU/booth-harvest/internal/policy/ratelimit"
	"github.com/JakeFAU/booth-harvest/internal/provider"
)

// Config controls retries and prompt size.
type Config struct {
	// Retries is the total number of provider attempts per record.
	Retries int
	// BackoffFactor is raised to the 0-based attempt number.
	BackoffFactor float64
	// RateLimitWait is the base wait after a throttled attempt.
	RateLimitWait time.Duration
	// RetryWait is the base wait after any other failed attempt.
	RetryWait time.Duration
	// MaxExamples caps the examples in the prompt; <= 0 uses all.
	MaxExamples int
}

// DefaultConfig returns the standard retry policy.
func DefaultConfig() Config {
	return Config{
		Retries:       3,
		BackoffFactor: 2,
		RateLimitWait: 5 * time.Second,
		RetryWait:     time.Second,
	}
}

// Formatter turns raw listings into FormattedRecords through a provider.
type Formatter struct {
	provider provider.Provider
	examples []Example
	cfg      Config
	limiter  *ratelimit.Limiter
	pauser   crawler.Pauser
	logger   *zap.Logger
}

// Option customizes a Formatter.
type Option func(*Formatter)

// WithExamples replaces the built-in examples.
func WithExamples(examples []Example) Option {
	return func(f *Formatter) { f.examples = examples }
}

// WithLimiter throttles provider calls through a shared limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(f *Formatter) { f.limiter = l }
}

// WithPauser overrides how retry waits are slept.
func WithPauser(p crawler.Pauser) Option {
	return func(f *Formatter) { f.pauser = p }
}

// New builds a Formatter. Zero config fields take their defaults.
func New(p provider.Provider, cfg Config, logger *zap.Logger, opts ...Option) (*Formatter, error) {
	if p == nil {
		return nil, fmt.Errorf("provider is required")
	}
	def := DefaultConfig()
	if cfg.Retries <= 0 {
		cfg.Retries = def.Retries
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = def.RateLimitWait
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = def.RetryWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Formatter{
		provider: p,
		examples: DefaultExamples(),
		cfg:      cfg,
		pauser:   crawler.TimerPauser{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Format asks the provider to reformat record. A nil record with a nil error
// means every attempt failed and the record was dropped. Errors are returned
// only for unusable input or a cancelled context.
func (f *Formatter) Format(ctx context.Context, record json.RawMessage) (*FormattedRecord, error) {
	prompt, err := BuildPrompt(f.examples, record, f.cfg.MaxExamples)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	name := f.provider.Name()

	for attempt := 0; attempt < f.cfg.Retries; attempt++ {
		if err := f.limiter.Wait(ctx, name); err != nil {
			return nil, err
		}

		start := time.Now()
		rec, err := f.attempt(ctx, prompt)
		metrics.ObserveFormatAttempt(name, outcome(err), time.Since(start))
		if err == nil {
			metrics.ObserveFormatRecord("formatted")
			return rec, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if attempt == f.cfg.Retries-1 {
			f.logger.Warn("provider attempts exhausted, dropping record",
				zap.Int("attempts", f.cfg.Retries), zap.Error(err))
			break
		}
		rateLimited := isRateLimited(err)
		wait := f.backoff(attempt, rateLimited)
		f.logger.Info("provider attempt failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Bool("rate_limited", rateLimited),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := f.pauser.Pause(ctx, wait); err != nil {
			return nil, err
		}
	}

	metrics.ObserveFormatRecord("dropped")
	return nil, nil
}

func (f *Formatter) attempt(ctx context.Context, prompt string) (*FormattedRecord, error) {
	text, err := f.provider.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return DecodeRecord(text)
}

func (f *Formatter) backoff(attempt int, rateLimited bool) time.Duration {
	base := f.cfg.RetryWait
	if rateLimited {
		base = f.cfg.RateLimitWait
	}
	return time.Duration(float64(base) * math.Pow(f.cfg.BackoffFactor, float64(attempt)))
}

// isRateLimited ignores reply parse and shape failures, whose messages quote
// model output.
func isRateLimited(err error) bool {
	if errors.Is(err, ErrParse) || errors.Is(err, ErrShape) {
		return false
	}
	return provider.IsRateLimited(err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isRateLimited(err):
		return "rate_limited"
	default:
		return "error"
	}
}
