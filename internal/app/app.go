// Package app builds and holds the long-lived services behind the CLI
// commands, acting as a small dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/booth-harvest/internal/config"
	"github.com/JakeFAU/booth-harvest/internal/crawler"
	collyfetcher "github.com/JakeFAU/booth-harvest/internal/fetcher/colly"
	"github.com/JakeFAU/booth-harvest/internal/fetcher/headless"
	"github.com/JakeFAU/booth-harvest/internal/formatter"
	"github.com/JakeFAU/booth-harvest/internal/hash/sha256"
	"github.com/JakeFAU/booth-harvest/internal/metrics"
	"github.com/JakeFAU/booth-harvest/internal/pipeline"
	"github.com/JakeFAU/booth-harvest/internal/policy/ratelimit"
	"github.com/JakeFAU/booth-harvest/internal/provider"
	"github.com/JakeFAU/booth-harvest/internal/provider/gemini"
	"github.com/JakeFAU/booth-harvest/internal/provider/ollama"
	memorypublisher "github.com/JakeFAU/booth-harvest/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/booth-harvest/internal/publisher/pubsub"
	"github.com/JakeFAU/booth-harvest/internal/scraper"
	"github.com/JakeFAU/booth-harvest/internal/search"
	gcsstorage "github.com/JakeFAU/booth-harvest/internal/storage/gcs"
	"github.com/JakeFAU/booth-harvest/internal/storage/local"
	memorystorage "github.com/JakeFAU/booth-harvest/internal/storage/memory"
	"github.com/JakeFAU/booth-harvest/internal/storage/postgres"
)

// memoryTopic receives snapshot events when no Pub/Sub topic is configured.
const memoryTopic = "snapshots"

// App holds the configuration, logger and every service opened on its behalf.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// New returns an App. Services are opened lazily by the builder methods and
// released by Close.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Close releases services in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

// StartMetrics serves /metrics and /healthz in the background when a listen
// address is configured. The listener stops with ctx.
func (a *App) StartMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.ListenAddr
	if addr == "" {
		return
	}
	metrics.Init()
	logger := a.logger.Named("metrics")
	go func() {
		if err := metrics.Serve(ctx, addr, logger); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// SnapshotStore opens the configured snapshot backend.
func (a *App) SnapshotStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.onClose("gcs", client.Close)
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return nil, err
		}
		a.logger.Info("using gcs snapshot store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return store, nil
	case config.BackendMemory:
		a.logger.Info("using in-memory snapshot store; snapshots are discarded on exit")
		return memorystorage.NewBlobStore(), nil
	default:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.OutputDir})
		if err != nil {
			return nil, fmt.Errorf("init local store: %w", err)
		}
		a.logger.Info("using local snapshot store", zap.String("dir", store.BaseDir()))
		return store, nil
	}
}

// ListingSink opens the Postgres sink, or returns nil when no DSN is set.
func (a *App) ListingSink(ctx context.Context) (crawler.ListingSink, error) {
	if a.cfg.DB.DSN == "" {
		return nil, nil
	}
	store, err := postgres.NewListingStore(ctx, postgres.ListingStoreConfig{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	a.onClose("postgres", func() error { store.Close(); return nil })
	if a.cfg.DB.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	a.logger.Info("writing listings to postgres", zap.String("table", a.cfg.DB.Table))
	return store, nil
}

// Publisher returns the Pub/Sub publisher and topic when configured, else an
// in-memory publisher that logs events at debug level.
func (a *App) Publisher(ctx context.Context) (crawler.Publisher, string, error) {
	if a.cfg.PubSub.TopicName == "" {
		return memorypublisher.New(a.logger.Named("events")), memoryTopic, nil
	}
	pub, err := pubsubpublisher.Connect(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, "", err
	}
	a.onClose("pubsub", pub.Close)
	a.logger.Info("publishing snapshot events", zap.String("topic", a.cfg.PubSub.TopicName))
	return pub, a.cfg.PubSub.TopicName, nil
}

// LikesCounter returns the headless counter, or a no-op when disabled.
func (a *App) LikesCounter() crawler.LikesCounter {
	if !a.cfg.Headless.Enabled {
		a.logger.Info("headless like counter disabled; likes will be null")
		return headless.NewNoop()
	}
	return headless.NewLikesCounter(headless.Config{
		UserAgent:         a.cfg.HTTP.UserAgent,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSeconds) * time.Second,
		SettleDelay:       time.Duration(a.cfg.Headless.SettleMillis) * time.Millisecond,
		ExecPath:          a.cfg.Headless.ExecPath,
	}, a.logger.Named("likes"))
}

// Pipeline wires the scrape pipeline from configuration.
func (a *App) Pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.HTTP.UserAgent,
		Headers:       collyfetcher.DefaultHeaders(a.cfg.HTTP.AcceptLanguage, a.cfg.HTTP.Referer),
		RespectRobots: a.cfg.HTTP.RespectRobots,
		Timeout:       a.cfg.HTTP.Timeout(),
	}, a.logger.Named("fetcher"))

	searcher, err := search.New(fetcher, a.cfg.Scrape.BaseURL, a.logger.Named("search"))
	if err != nil {
		return nil, err
	}
	detail := scraper.New(fetcher, a.LikesCounter(), a.logger.Named("scraper"))

	store, err := a.SnapshotStore(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := a.ListingSink(ctx)
	if err != nil {
		return nil, err
	}
	pub, topic, err := a.Publisher(ctx)
	if err != nil {
		return nil, err
	}

	minWait, maxWait := a.cfg.Scrape.WaitRange()
	opts := []pipeline.Option{pipeline.WithPublisher(pub), pipeline.WithHasher(sha256.New())}
	if sink != nil {
		opts = append(opts, pipeline.WithListingSink(sink))
	}
	return pipeline.New(pipeline.Config{
		Keyword:       a.cfg.Scrape.Keyword,
		StartPage:     a.cfg.Scrape.StartPage,
		EndPage:       a.cfg.Scrape.EndPage,
		Wait:          crawler.WaitRange{Min: minWait, Max: maxWait},
		PageWaitExtra: crawler.WaitRange{Min: 2 * time.Second, Max: 3 * time.Second},
		FilePrefix:    a.cfg.Scrape.FilePrefix,
		Topic:         topic,
	}, searcher, detail, store, crawler.TimerPauser{}, a.logger.Named("pipeline"), opts...)
}

// Provider builds the text-generation provider selected by format.api.
func (a *App) Provider(ctx context.Context) (provider.Provider, error) {
	switch a.cfg.Format.API {
	case config.APIOllama:
		client := ollama.New(ollama.Config{
			BaseURL: a.cfg.Ollama.APIURL,
			Model:   a.cfg.Model(),
			Timeout: time.Duration(a.cfg.Ollama.TimeoutSeconds) * time.Second,
		}, nil, a.logger.Named("ollama"))
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ollama health check: %w", err)
		}
		a.logger.Info("using ollama", zap.String("model", client.Model()), zap.String("url", a.cfg.Ollama.APIURL))
		return client, nil
	case config.APIGemini:
		client, err := gemini.New(ctx, gemini.Config{APIKey: a.cfg.Gemini.APIKey, Model: a.cfg.Model()})
		if err != nil {
			return nil, err
		}
		a.logger.Info("using gemini", zap.String("model", client.Model()))
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported api %q", a.cfg.Format.API)
	}
}

// Batch wires the formatter batch around p.
func (a *App) Batch(p provider.Provider) (*formatter.Batch, error) {
	var opts []formatter.Option
	if a.cfg.Format.ExamplesPath != "" {
		examples, err := formatter.LoadExamples(a.cfg.Format.ExamplesPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, formatter.WithExamples(examples))
	}
	if a.cfg.Format.RequestsPerMinute > 0 {
		opts = append(opts, formatter.WithLimiter(ratelimit.New(ratelimit.Config{
			RequestsPerMinute: a.cfg.Format.RequestsPerMinute,
		})))
	}
	f, err := formatter.New(p, formatter.Config{
		Retries:       a.cfg.Format.Retries,
		BackoffFactor: a.cfg.Format.BackoffFactor,
		MaxExamples:   a.cfg.Format.MaxExamples,
	}, a.logger.Named("formatter"), opts...)
	if err != nil {
		return nil, err
	}

	out, err := local.New(local.Config{BaseDir: a.cfg.Format.OutputDir})
	if err != nil {
		return nil, fmt.Errorf("init output dir: %w", err)
	}
	delay := a.cfg.Format.ItemDelay()
	if delay == 0 {
		// Zero means "no delay" here; the batch treats zero as "default".
		delay = -1
	}
	return formatter.NewBatch(f, out, formatter.BatchConfig{
		ItemDelay: delay,
		Workers:   a.cfg.Format.Workers,
	}, crawler.TimerPauser{}, a.logger.Named("batch"))
}
