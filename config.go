package geiri

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/geiri-is/geiri/linkedin"
	"github.com/geiri-is/geiri/posts"
)

// SiteConfig holds all configuration for a geiri site.
type SiteConfig struct {
	Name        string `toml:"name"`        // Site name (default "Geiri")
	URL         string `toml:"url"`         // Canonical URL without trailing slash
	Description string `toml:"description"` // Site description for RSS and meta tags
	Author      string `toml:"author"`      // Author name for JSON-LD

	Addr string `toml:"addr"` // Listen address (default ":3000")

	// DocstoreURL selects the document store: postgres://..., sqlite://path
	// or a bare sqlite path. Empty keeps everything in memory.
	DocstoreURL      string `toml:"docstore_url"`
	PostsContainer   string `toml:"posts_container"`
	SecretsContainer string `toml:"secrets_container"`

	SessionSecret string `toml:"session_secret"` // Required: signs the OAuth state cookie
	CookieSecure  bool   `toml:"cookie_secure"`  // Set true for HTTPS

	// DevMode treats every request as coming from an admin.
	DevMode bool   `toml:"dev_mode"`
	Env     string `toml:"env"`

	PostCacheTTL time.Duration `toml:"post_cache_ttl"` // default 5m

	LinkedIn LinkedInConfig `toml:"linkedin"`

	LogLevel  string `toml:"log_level"`  // zerolog level name (default "info")
	LogFormat string `toml:"log_format"` // "console" or "json"
	SentryDSN string `toml:"sentry_dsn"`
}

// LinkedInConfig holds the LinkedIn app credentials.
type LinkedInConfig struct {
	ClientID        string        `toml:"client_id"`
	ClientSecret    string        `toml:"client_secret"`
	RedirectURL     string        `toml:"redirect_uri"`
	DisableAutoPost bool          `toml:"disable_auto_post"`
	Timeout         time.Duration `toml:"timeout"`

	// Endpoint overrides, empty for the LinkedIn defaults.
	AuthURL    string `toml:"auth_url"`
	TokenURL   string `toml:"token_url"`
	APIBaseURL string `toml:"api_base_url"`
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Geiri"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	c.URL = strings.TrimRight(c.URL, "/")
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.PostsContainer == "" {
		c.PostsContainer = "posts"
	}
	if c.SecretsContainer == "" {
		c.SecretsContainer = "secrets"
	}
	if c.Env == "" {
		c.Env = "production"
	}
	if c.Env == "development" {
		c.DevMode = true
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
	if c.LinkedIn.Timeout == 0 {
		c.LinkedIn.Timeout = linkedin.DefaultTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = zerolog.LevelInfoValue
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
}

func (c SiteConfig) linkedInConfig() linkedin.Config {
	return linkedin.Config{
		ClientID:        c.LinkedIn.ClientID,
		ClientSecret:    c.LinkedIn.ClientSecret,
		RedirectURL:     c.LinkedIn.RedirectURL,
		SiteURL:         c.URL,
		DisableAutoPost: c.LinkedIn.DisableAutoPost,
		Timeout:         c.LinkedIn.Timeout,
		AuthURL:         c.LinkedIn.AuthURL,
		TokenURL:        c.LinkedIn.TokenURL,
		APIBaseURL:      c.LinkedIn.APIBaseURL,
	}
}

// LoadConfig reads the optional TOML file at path, applies environment
// overrides and fills in defaults.
func LoadConfig(path string) (SiteConfig, error) {
	var cfg SiteConfig
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return SiteConfig{}, fmt.Errorf("geiri: read config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return SiteConfig{}, err
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *SiteConfig) applyEnv() error {
	c.Name = EnvOr("SITE_NAME", c.Name)
	c.URL = EnvOr("SITE_URL", c.URL)
	c.Description = EnvOr("SITE_DESCRIPTION", c.Description)
	c.Author = EnvOr("SITE_AUTHOR", c.Author)
	c.Addr = EnvOr("ADDR", c.Addr)
	c.DocstoreURL = EnvOr("DOCSTORE_URL", c.DocstoreURL)
	c.PostsContainer = EnvOr("POSTS_CONTAINER", c.PostsContainer)
	c.SecretsContainer = EnvOr("SECRETS_CONTAINER", c.SecretsContainer)
	c.SessionSecret = EnvOr("SESSION_SECRET", c.SessionSecret)
	c.Env = EnvOr("GEIRI_ENV", c.Env)
	c.LogLevel = EnvOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = EnvOr("LOG_FORMAT", c.LogFormat)
	c.SentryDSN = EnvOr("SENTRY_DSN", c.SentryDSN)
	c.LinkedIn.ClientID = EnvOr("LINKEDIN_CLIENT_ID", c.LinkedIn.ClientID)
	c.LinkedIn.ClientSecret = EnvOr("LINKEDIN_CLIENT_SECRET", c.LinkedIn.ClientSecret)
	c.LinkedIn.RedirectURL = EnvOr("LINKEDIN_REDIRECT_URI", c.LinkedIn.RedirectURL)

	// only the literal "false" turns auto-posting off
	if v, ok := os.LookupEnv("LINKEDIN_AUTO_POST"); ok {
		c.LinkedIn.DisableAutoPost = v == "false"
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("geiri: COOKIE_SECURE: %w", err)
		}
		c.CookieSecure = b
	}
	for key, dst := range map[string]*time.Duration{
		"POST_CACHE_TTL":   &c.PostCacheTTL,
		"LINKEDIN_TIMEOUT": &c.LinkedIn.Timeout,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("geiri: %s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Option configures additional App behavior.
type Option func(*App)

// WithLogger sets the application logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *App) {
		a.Log = log
	}
}

// WithPostBackend stores posts in b instead of the configured docstore.
func WithPostBackend(b posts.Backend) Option {
	return func(a *App) {
		a.backend = b
	}
}

// WithSecretStore keeps the LinkedIn secret in s instead of the configured docstore.
func WithSecretStore(s linkedin.SecretStore) Option {
	return func(a *App) {
		a.secrets = s
	}
}

// WithCrossPoster replaces the LinkedIn client used when publishing.
func WithCrossPoster(cp CrossPoster) Option {
	return func(a *App) {
		a.crossPoster = cp
	}
}

// WithLinkedInOptions passes options through to the LinkedIn client.
func WithLinkedInOptions(opts ...linkedin.Option) Option {
	return func(a *App) {
		a.linkedInOpts = append(a.linkedInOpts, opts...)
	}
}
