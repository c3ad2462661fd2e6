// Package pipeline drives a keyword scrape across search result pages and
// persists snapshots of everything collected so far.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/booth-harvest/internal/crawler"
	"github.com/JakeFAU/booth-harvest/internal/metrics"
)

// DefaultFilePrefix names snapshots when no prefix is configured.
const DefaultFilePrefix = "booth_data"

// SnapshotEventName is the event type published after every snapshot write.
const SnapshotEventName = "snapshot.written"

// Snapshot kinds, used in file names, events and metrics.
const (
	KindPage        = "page"
	KindFinal       = "final"
	KindInterrupted = "interrupted"
	KindError       = "error"
)

var (
	errInterrupted = errors.New("scrape interrupted")
	// ErrPanic wraps a panic recovered while collecting listings.
	ErrPanic = errors.New("scrape panicked")
)

// Config is the explicit configuration of one scrape run.
type Config struct {
	Keyword   string
	StartPage int
	EndPage   int
	// Wait is the pause before every detail request.
	Wait crawler.WaitRange
	// PageWaitExtra widens Wait for the pause between result pages.
	PageWaitExtra crawler.WaitRange
	FilePrefix    string
	// Topic receives snapshot events; empty disables publishing.
	Topic string
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.Keyword == "":
		return fmt.Errorf("keyword is required")
	case c.StartPage < 1:
		return fmt.Errorf("start page must be >= 1")
	case c.EndPage < c.StartPage:
		return fmt.Errorf("end page must be >= start page")
	case c.Wait.Min < 0 || c.Wait.Max < c.Wait.Min:
		return fmt.Errorf("wait range must satisfy 0 <= min <= max")
	}
	return nil
}

// Result summarizes a run.
type Result struct {
	RunID       string
	Items       []crawler.ListingDetail
	Pages       int
	Interrupted bool
	SnapshotURI string
	Elapsed     time.Duration
}

// Pipeline wires the searcher, scraper and stores of a scrape run.
type Pipeline struct {
	cfg       Config
	searcher  crawler.Searcher
	scraper   crawler.DetailScraper
	store     crawler.BlobStore
	pauser    crawler.Pauser
	sink      crawler.ListingSink
	publisher crawler.Publisher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	hasher    crawler.Hasher
	random    func() float64
	logger    *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithListingSink writes every collected listing to sink.
func WithListingSink(sink crawler.ListingSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithPublisher announces snapshot writes through pub.
func WithPublisher(pub crawler.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithClock overrides the time source.
func WithClock(clock crawler.Clock) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(ids crawler.IDGenerator) Option {
	return func(p *Pipeline) { p.ids = ids }
}

// WithHasher stamps published snapshot events with a payload digest.
func WithHasher(h crawler.Hasher) Option {
	return func(p *Pipeline) { p.hasher = h }
}

// WithRandom overrides the source of uniform floats used to pick delays.
func WithRandom(r func() float64) Option {
	return func(p *Pipeline) { p.random = r }
}

// New validates cfg and builds a Pipeline.
func New(
	cfg Config,
	searcher crawler.Searcher,
	scraper crawler.DetailScraper,
	store crawler.BlobStore,
	pauser crawler.Pauser,
	logger *zap.Logger,
	opts ...Option,
) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if searcher == nil || scraper == nil || store == nil {
		return nil, fmt.Errorf("searcher, scraper and store are required")
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = DefaultFilePrefix
	}
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:      cfg,
		searcher: searcher,
		scraper:  scraper,
		store:    store,
		pauser:   pauser,
		clock:    systemClock{},
		ids:      uuidGenerator{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type runState struct {
	id    string
	items []crawler.ListingDetail
	pages int
}

// Run scrapes every configured page. Cancelling ctx stops the run at the next
// loop boundary or pause; the collected items are then saved to the
// interrupted snapshot and Run returns a nil error. Other failures save the
// error snapshot and are returned.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.clock.Now()
	runID, err := p.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := p.logger.With(zap.String("run_id", runID), zap.String("keyword", p.cfg.Keyword))
	logger.Info("scrape started", zap.Int("start_page", p.cfg.StartPage), zap.Int("end_page", p.cfg.EndPage))

	run := &runState{id: runID}
	collectErr := p.safeCollect(ctx, run, logger)
	// Snapshots must land even after cancellation.
	persistCtx := context.WithoutCancel(ctx)

	result := Result{RunID: runID}
	finish := func() Result {
		result.Items = run.items
		result.Pages = run.pages
		result.Elapsed = p.clock.Now().Sub(start)
		return result
	}

	switch {
	case collectErr == nil:
		uri, err := p.writeSnapshot(persistCtx, run, KindFinal, p.finalName(), logger)
		if err != nil {
			logger.Error("final snapshot failed", zap.Error(err))
			p.writeErrorSnapshot(persistCtx, run, logger)
			return finish(), err
		}
		result.SnapshotURI = uri
	case errors.Is(collectErr, errInterrupted):
		logger.Warn("scrape interrupted, saving collected items", zap.Int("items", len(run.items)))
		result.Interrupted = true
		uri, err := p.writeSnapshot(persistCtx, run, KindInterrupted, p.snapshotName(KindInterrupted), logger)
		if err != nil {
			return finish(), fmt.Errorf("interrupted snapshot: %w", err)
		}
		result.SnapshotURI = uri
	default:
		logger.Error("scrape failed", zap.Error(collectErr))
		p.writeErrorSnapshot(persistCtx, run, logger)
		return finish(), collectErr
	}

	res := finish()
	logger.Info("scrape finished",
		zap.Int("items", len(res.Items)),
		zap.Int("pages", res.Pages),
		zap.Bool("interrupted", res.Interrupted),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (p *Pipeline) safeCollect(ctx context.Context, run *runState, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return p.collect(ctx, run, logger)
}

func (p *Pipeline) collect(ctx context.Context, run *runState, logger *zap.Logger) error {
	// Requests already in flight finish on their own; cancellation is
	// observed between them.
	detached := context.WithoutCancel(ctx)

	for page := p.cfg.StartPage; page <= p.cfg.EndPage; page++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", errInterrupted, err)
		}
		summaries := p.searcher.Search(detached, p.cfg.Keyword, page)
		logger.Info("search page listed", zap.Int("page", page), zap.Int("items", len(summaries)))

		for _, summary := range summaries {
			if err := p.pause(ctx, p.cfg.Wait); err != nil {
				return err
			}
			detail := crawler.Normalize(p.scraper.Scrape(detached, summary))
			run.items = append(run.items, detail)
			p.sinkListing(detached, run.id, detail, logger)
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %w", errInterrupted, err)
			}
		}

		run.pages++
		if _, err := p.writeSnapshot(detached, run, KindPage, p.pageName(page), logger); err != nil {
			return fmt.Errorf("page %d snapshot: %w", page, err)
		}
		if page < p.cfg.EndPage {
			if err := p.pause(ctx, p.cfg.Wait.Widen(p.cfg.PageWaitExtra.Min, p.cfg.PageWaitExtra.Max)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) pause(ctx context.Context, wait crawler.WaitRange) error {
	if err := p.pauser.Pause(ctx, wait.Pick(p.random)); err != nil {
		return fmt.Errorf("%w: %w", errInterrupted, err)
	}
	return nil
}

func (p *Pipeline) sinkListing(ctx context.Context, runID string, detail crawler.ListingDetail, logger *zap.Logger) {
	if p.sink == nil {
		return
	}
	if err := p.sink.UpsertListing(ctx, runID, detail); err != nil {
		logger.Warn("listing sink write failed", zap.String("id", detail.ID), zap.Error(err))
	}
}

func (p *Pipeline) writeErrorSnapshot(ctx context.Context, run *runState, logger *zap.Logger) {
	if len(run.items) == 0 {
		return
	}
	if _, err := p.writeSnapshot(ctx, run, KindError, p.snapshotName(KindError), logger); err != nil {
		logger.Error("error snapshot failed", zap.Error(err))
	}
}

func (p *Pipeline) writeSnapshot(ctx context.Context, run *runState, kind, name string, logger *zap.Logger) (string, error) {
	items := crawler.NormalizeAll(run.items)
	data, err := crawler.EncodeJSON(items)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	uri, err := p.store.PutObject(ctx, name, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store snapshot %s: %w", name, err)
	}
	metrics.ObserveSnapshot(kind)
	logger.Info("snapshot saved", zap.String("kind", kind), zap.String("uri", uri), zap.Int("items", len(items)))
	p.announce(ctx, run, kind, uri, data, len(items), logger)
	return uri, nil
}

func (p *Pipeline) announce(ctx context.Context, run *runState, kind, uri string, data []byte, count int, logger *zap.Logger) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	event := crawler.SnapshotEvent{
		Event:     SnapshotEventName,
		RunID:     run.id,
		Keyword:   p.cfg.Keyword,
		Kind:      kind,
		URI:       uri,
		Count:     count,
		WrittenAt: p.clock.Now(),
	}
	if p.hasher != nil {
		event.SHA256 = p.hasher.Hash(data)
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, event); err != nil {
		logger.Warn("snapshot event publish failed", zap.String("uri", uri), zap.Error(err))
	}
}

func (p *Pipeline) pageName(page int) string {
	return fmt.Sprintf("%s_page_%d-%d.json", p.cfg.FilePrefix, p.cfg.StartPage, page)
}

func (p *Pipeline) finalName() string {
	return fmt.Sprintf("%s_%s.json", p.cfg.FilePrefix, crawler.SafeFileComponent(p.cfg.Keyword))
}

func (p *Pipeline) snapshotName(kind string) string {
	return fmt.Sprintf("%s_%s.json", p.cfg.FilePrefix, kind)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type uuidGenerator struct{}

func (uuidGenerator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
