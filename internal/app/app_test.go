package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/booth-harvest/internal/config"
	"github.com/JakeFAU/booth-harvest/internal/fetcher/headless"
	memorypublisher "github.com/JakeFAU/booth-harvest/internal/publisher/memory"
	memorystorage "github.com/JakeFAU/booth-harvest/internal/storage/memory"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Backend = config.BackendMemory
	cfg.Headless.Enabled = false
	cfg.Format.OutputDir = filepath.Join(t.TempDir(), "formatted")
	cfg.Gemini.APIKey = ""
	return cfg
}

func TestDefaultServices(t *testing.T) {
	t.Parallel()

	a := New(testConfig(t), zap.NewNop())
	defer a.Close()
	ctx := context.Background()

	store, err := a.SnapshotStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &memorystorage.BlobStore{}, store)

	sink, err := a.ListingSink(ctx)
	require.NoError(t, err)
	assert.Nil(t, sink)

	pub, topic, err := a.Publisher(ctx)
	require.NoError(t, err)
	assert.IsType(t, &memorypublisher.Publisher{}, pub)
	assert.Equal(t, memoryTopic, topic)

	assert.IsType(t, headless.NewNoop(), a.LikesCounter())
}

func TestLocalSnapshotStore(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Storage.Backend = config.BackendLocal
	cfg.Storage.OutputDir = filepath.Join(t.TempDir(), "data")
	a := New(cfg, nil)

	store, err := a.SnapshotStore(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.DirExists(t, cfg.Storage.OutputDir)
}

func TestPipelineBuilds(t *testing.T) {
	t.Parallel()

	a := New(testConfig(t), zap.NewNop())
	defer a.Close()

	p, err := a.Pipeline(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestPipelineRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Scrape.BaseURL = "booth.pm"
	_, err := New(cfg, nil).Pipeline(context.Background())
	require.Error(t, err)
}

func TestOllamaProviderAndBatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Format.API = config.APIOllama
	cfg.Ollama.APIURL = srv.URL + "/api"
	cfg.Format.RequestsPerMinute = 30
	a := New(cfg, zap.NewNop())

	p, err := a.Provider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.APIOllama, p.Name())

	b, err := a.Batch(p)
	require.NoError(t, err)
	assert.NotNil(t, b)
	assert.DirExists(t, cfg.Format.OutputDir)
}

func TestOllamaProviderUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	cfg := testConfig(t)
	cfg.Format.API = config.APIOllama
	cfg.Ollama.APIURL = srv.URL
	_, err := New(cfg, nil).Provider(context.Background())
	require.ErrorContains(t, err, "ollama health check")
}

func TestGeminiProviderNeedsKey(t *testing.T) {
	t.Parallel()

	_, err := New(testConfig(t), nil).Provider(context.Background())
	require.ErrorContains(t, err, "GEMINI_API_KEY")
}

func TestBatchBadExamplesPath(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Format.ExamplesPath = filepath.Join(t.TempDir(), "missing.json")
	_, err := New(cfg, nil).Batch(stubProvider{})
	require.Error(t, err)
}

func TestCloseRunsInReverse(t *testing.T) {
	t.Parallel()

	a := New(testConfig(t), zap.NewNop())
	var order []string
	a.onClose("first", func() error { order = append(order, "first"); return nil })
	a.onClose("second", func() error { order = append(order, "second"); return errors.New("already closed") })
	a.Close()
	a.Close()
	assert.Equal(t, []string{"second", "first"}, order)
}

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Generate(context.Context, string) (string, error) { return "", nil }
