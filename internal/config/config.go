// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends for snapshots.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Text-generation APIs for the formatter.
const (
	APIGemini = "gemini"
	APIOllama = "ollama"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Format   FormatConfig   `mapstructure:"format"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScrapeConfig describes one keyword scrape.
type ScrapeConfig struct {
	Keyword        string  `mapstructure:"keyword"`
	StartPage      int     `mapstructure:"start_page"`
	EndPage        int     `mapstructure:"end_page"`
	MinWaitSeconds float64 `mapstructure:"min_wait_seconds"`
	MaxWaitSeconds float64 `mapstructure:"max_wait_seconds"`
	FilePrefix     string  `mapstructure:"file_prefix"`
	BaseURL        string  `mapstructure:"base_url"`
}

// HTTPConfig sets the headers and timeout of static page fetches.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	AcceptLanguage string `mapstructure:"accept_language"`
	Referer        string `mapstructure:"referer"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the browser used to read like counters.
type HeadlessConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	SettleMillis      int    `mapstructure:"settle_millis"`
	ExecPath          string `mapstructure:"exec_path"`
}

// StorageConfig selects where snapshots are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	OutputDir string `mapstructure:"output_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres listing sink.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	EnsureSchema           bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig holds metadata for snapshot notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// FormatConfig drives the formatter batch.
type FormatConfig struct {
	API               string  `mapstructure:"api"`
	Model             string  `mapstructure:"model"`
	OutputDir         string  `mapstructure:"output_dir"`
	Workers           int     `mapstructure:"workers"`
	DelaySeconds      float64 `mapstructure:"delay_seconds"`
	Retries           int     `mapstructure:"retries"`
	BackoffFactor     float64 `mapstructure:"backoff_factor"`
	MaxExamples       int     `mapstructure:"max_examples"`
	ExamplesPath      string  `mapstructure:"examples_path"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
}

// GeminiConfig holds the Gemini credentials.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// OllamaConfig points at a local Ollama server.
type OllamaConfig struct {
	APIURL         string `mapstructure:"api_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// MetricsConfig enables the Prometheus listener when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// DefaultDotEnvPaths are tried in order by LoadDotEnv.
var DefaultDotEnvPaths = []string{".env", "../.env", "../../.env"}

// LoadDotEnv loads the first .env file that exists and returns its path.
// Variables already present in the environment win.
func LoadDotEnv(paths ...string) (string, error) {
	if len(paths) == 0 {
		paths = DefaultDotEnvPaths
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return "", fmt.Errorf("load %s: %w", p, err)
		}
		return p, nil
	}
	return "", nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("scrape.keyword", "マダミス")
	v.SetDefault("scrape.start_page", 1)
	v.SetDefault("scrape.end_page", 3)
	v.SetDefault("scrape.min_wait_seconds", 1)
	v.SetDefault("scrape.max_wait_seconds", 2)
	v.SetDefault("scrape.file_prefix", "booth_data")
	v.SetDefault("scrape.base_url", "https://booth.pm")
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("http.accept_language", "ja,en-US;q=0.7,en;q=0.3")
	v.SetDefault("http.referer", "https://booth.pm/ja")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.settle_millis", 2000)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.output_dir", "data")
	v.SetDefault("db.table", "listings")
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("format.api", APIGemini)
	v.SetDefault("format.output_dir", "data/formatted")
	v.SetDefault("format.workers", 1)
	v.SetDefault("format.delay_seconds", 4)
	v.SetDefault("format.retries", 3)
	v.SetDefault("format.backoff_factor", 2)
	v.SetDefault("gemini.model", "gemini-2.0-flash-001")
	v.SetDefault("ollama.api_url", "http://localhost:11434/api")
	v.SetDefault("ollama.model", "gemma3:12b")
	v.SetDefault("ollama.timeout_seconds", 300)
}

// bindEnv maps the provider variables that conventionally carry no prefix.
func bindEnv(v *viper.Viper) error {
	if err := v.BindEnv("gemini.api_key", "HARVESTER_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return fmt.Errorf("bind gemini.api_key: %w", err)
	}
	if err := v.BindEnv("ollama.api_url", "HARVESTER_OLLAMA_API_URL", "OLLAMA_API_URL"); err != nil {
		return fmt.Errorf("bind ollama.api_url: %w", err)
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.ValidateScrape(); err != nil {
		return err
	}
	return c.ValidateFormat()
}

// ValidateScrape checks the settings the scrape command depends on.
func (c Config) ValidateScrape() error {
	if c.Scrape.StartPage < 1 {
		return fmt.Errorf("scrape.start_page must be >= 1")
	}
	if c.Scrape.EndPage < c.Scrape.StartPage {
		return fmt.Errorf("scrape.end_page must be >= scrape.start_page")
	}
	if c.Scrape.MinWaitSeconds < 0 || c.Scrape.MaxWaitSeconds < c.Scrape.MinWaitSeconds {
		return fmt.Errorf("scrape wait range must satisfy 0 <= min_wait_seconds <= max_wait_seconds")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.OutputDir == "" {
			return fmt.Errorf("storage.output_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory (got %q)", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// ValidateFormat checks the settings the format command depends on. The
// Gemini key is checked when the provider is built so that scraping works
// without one.
func (c Config) ValidateFormat() error {
	switch c.Format.API {
	case APIGemini, APIOllama:
	default:
		return fmt.Errorf("format.api must be gemini or ollama (got %q)", c.Format.API)
	}
	if c.Format.Workers < 1 {
		return fmt.Errorf("format.workers must be >= 1")
	}
	if c.Format.Retries < 1 {
		return fmt.Errorf("format.retries must be >= 1")
	}
	if c.Format.DelaySeconds < 0 {
		return fmt.Errorf("format.delay_seconds must be >= 0")
	}
	return nil
}

// WaitRange returns the per-item politeness window.
func (s ScrapeConfig) WaitRange() (time.Duration, time.Duration) {
	return seconds(s.MinWaitSeconds), seconds(s.MaxWaitSeconds)
}

// Timeout returns the static fetch timeout.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// ItemDelay returns the pause between formatted records.
func (f FormatConfig) ItemDelay() time.Duration {
	return seconds(f.DelaySeconds)
}

// Model returns the configured model for the selected API, letting
// format.model override the provider default.
func (c Config) Model() string {
	if c.Format.Model != "" {
		return c.Format.Model
	}
	if c.Format.API == APIOllama {
		return c.Ollama.Model
	}
	return c.Gemini.Model
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
