package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/paperfeed/internal/scope"
)

// Storage backends.
const (
	BackendFile     = string(scope.KindFile)
	BackendSession  = string(scope.KindSession)
	BackendDatabase = string(scope.KindDatabase)
)

// Config represents the application configuration.
type Config struct {
	App             ApplicationConfig     `yaml:"app"`
	Storage         StorageConfig         `yaml:"storage"`
	SQLite          SQLiteConfig          `yaml:"sqlite"`
	Sessions        SessionsConfig        `yaml:"sessions"`
	Zotero          UpstreamConfig        `yaml:"zotero"`
	SemanticScholar SemanticScholarConfig `yaml:"semantic_scholar"`
	Refresh         RefreshConfig         `yaml:"refresh"`
	Admin           AdminConfig           `yaml:"admin"`
	Encryption      EncryptionConfig      `yaml:"encryption"`
	Feed            FeedConfig            `yaml:"feed"`
	Arxiv           ArxivConfig           `yaml:"arxiv"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Storage, &c.Zotero, &c.SemanticScholar, &c.Refresh, &c.Admin, &c.Arxiv,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.Storage.Backend == BackendDatabase {
		if c.Encryption.Key == "" {
			return errors.New("encryption: key is required for the database backend")
		}
		if err := c.SQLite.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port        int             `yaml:"port"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	CORSOrigins []string        `yaml:"cors_origins"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.RateLimit),
	)
}

// RateLimitConfig limits API requests per client IP. Zero requests disables it.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Validate validates the rate limit configuration.
func (c RateLimitConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Requests, validation.Min(0)),
		validation.Field(&c.Window, validation.When(c.Requests > 0, validation.Required)),
	)
}

// StorageConfig selects where credentials and refresh state live.
//
// Backend is one of:
//   - "file" (default): one shared api_keys.json and state files under Dir.
//   - "session": per-visitor credentials and state in the session store.
//   - "database": user accounts in SQLite, state in the session store.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendFile
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendFile, BackendSession, BackendDatabase)),
		validation.Field(&c.Dir, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SessionsConfig configures the Badger session store and its cookie.
type SessionsConfig struct {
	Path       string        `yaml:"path"`
	InMemory   bool          `yaml:"in_memory"`
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
	Secure     bool          `yaml:"secure"`
}

// UpstreamConfig configures an outbound API client.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// Delay is the pause before every request.
	Delay time.Duration `yaml:"delay"`
}

// Validate validates the upstream configuration.
func (c UpstreamConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.Delay, validation.Min(time.Duration(0))),
	)
}

// SemanticScholarConfig configures the recommendations client.
type SemanticScholarConfig struct {
	UpstreamConfig `yaml:",inline"`
	MaxAttempts    int `yaml:"max_attempts"`
}

// Validate validates the Semantic Scholar configuration.
func (c *SemanticScholarConfig) Validate() error {
	if err := c.UpstreamConfig.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
	)
}

// RefreshConfig holds the sizes of the daily refresh.
type RefreshConfig struct {
	SeedPapers      int `yaml:"seed_papers"`
	Recommendations int `yaml:"recommendations"`
	PoolMultiplier  int `yaml:"pool_multiplier"`
}

// Validate validates the refresh configuration.
func (c *RefreshConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SeedPapers, validation.Required, validation.Min(1)),
		validation.Field(&c.Recommendations, validation.Required, validation.Min(1)),
		validation.Field(&c.PoolMultiplier, validation.Required, validation.Min(1)),
	)
}

// AdminConfig forces one Semantic Scholar key for every scope.
type AdminConfig struct {
	Enabled               bool   `yaml:"enabled"`
	SemanticScholarAPIKey string `yaml:"semantic_scholar_api_key"`
}

// Validate validates the admin configuration.
func (c *AdminConfig) Validate() error {
	if c.Enabled && c.SemanticScholarAPIKey == "" {
		return errors.New("admin: enabled but semantic_scholar_api_key is empty")
	}
	return nil
}

// Key returns the forced key, or "" when admin mode is off.
func (c *AdminConfig) Key() string {
	if !c.Enabled {
		return ""
	}
	return c.SemanticScholarAPIKey
}

// EncryptionConfig holds the secret used for credential columns and feed tokens.
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// FeedConfig configures the RSS feed.
type FeedConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	PublicURL   string `yaml:"public_url"`
}

// ArxivConfig configures the arXiv search service.
type ArxivConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	MaxResults int           `yaml:"max_results"`
	// RateLimit is the minimum interval between arXiv requests.
	RateLimit time.Duration `yaml:"rate_limit"`
}

// Validate validates the arXiv configuration.
func (c *ArxivConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.CacheTTL, validation.Required),
		validation.Field(&c.MaxResults, validation.Required, validation.Min(1), validation.Max(2000)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
				RateLimit: RateLimitConfig{
					Requests: 120,
					Window:   time.Minute,
				},
			},
		},
		Storage: StorageConfig{
			Backend: BackendFile,
			Dir:     "./data",
		},
		SQLite: SQLiteConfig{
			Path: "./data/paperfeed.db",
		},
		Sessions: SessionsConfig{
			Path:       "./data/sessions",
			CookieName: "paperfeed_session",
			TTL:        30 * 24 * time.Hour,
		},
		Zotero: UpstreamConfig{
			BaseURL: "https://api.zotero.org",
			Timeout: 30 * time.Second,
			Delay:   1500 * time.Millisecond,
		},
		SemanticScholar: SemanticScholarConfig{
			UpstreamConfig: UpstreamConfig{
				BaseURL: "https://api.semanticscholar.org",
				Timeout: 30 * time.Second,
				Delay:   1500 * time.Millisecond,
			},
			MaxAttempts: 5,
		},
		Refresh: RefreshConfig{
			SeedPapers:      10,
			Recommendations: 3,
			PoolMultiplier:  10,
		},
		Feed: FeedConfig{
			Enabled: true,
		},
		Arxiv: ArxivConfig{
			Enabled:    true,
			BaseURL:    "https://export.arxiv.org",
			Timeout:    60 * time.Second,
			CacheTTL:   24 * time.Hour,
			MaxResults: 100,
			RateLimit:  3 * time.Second,
		},
	}
}
