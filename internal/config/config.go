package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all environment backed configuration for the gateway.
type Config struct {
	// HTTP Server
	HTTPPort          int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	APIKey            string        `env:"API_KEY"`
	RateLimitPerHour  int           `env:"RATE_LIMIT_PER_HOUR" envDefault:"600"`
	RateLimitBurst    int           `env:"RATE_LIMIT_BURST" envDefault:"20"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	EnableDebugSocket bool          `env:"ENABLE_DEBUG_SOCKET" envDefault:"false"`

	// Remote chat site
	TargetBaseURL string   `env:"TARGET_BASE_URL,notEmpty"`
	RemotePaths   []string `env:"REMOTE_PATHS" envSeparator:"," envDefault:"chatgpt,deepseek"`

	// Catalog
	CacheTTLDays     int    `env:"CACHE_TTL_DAYS" envDefault:"1"`
	CatalogDBPath    string `env:"CATALOG_DB_PATH" envDefault:"./storage/catalog.db"`
	CatalogFetchMode string `env:"CATALOG_FETCH_MODE" envDefault:"http"`

	// Browser
	BrowserMode        string        `env:"BROWSER_MODE" envDefault:"docker"`
	BrowserWSURL       string        `env:"BROWSER_WS_URL"`
	BrowserImage       string        `env:"BROWSER_IMAGE" envDefault:"browserless/chrome:latest"`
	ProfileDir         string        `env:"PROFILE_DIR" envDefault:"./storage/profiles"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"0s"`

	// Completion watcher
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
	IdlePolls         int           `env:"IDLE_POLLS" envDefault:"10"`
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"60s"`
	ElementTimeout    time.Duration `env:"ELEMENT_TIMEOUT" envDefault:"15s"`
	SendRetries       int           `env:"SEND_RETRIES" envDefault:"3"`
	StreamChunkWords  int           `env:"STREAM_CHUNK_WORDS" envDefault:"10"`

	Selectors Selectors

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Selectors locate the remote UI controls. Defaults match the target site's markup.
type Selectors struct {
	ModelSelect  string `env:"SELECTOR_MODEL_SELECT" envDefault:"select#model-select"`
	Temperature  string `env:"SELECTOR_TEMPERATURE" envDefault:"input#temperature"`
	MessageInput string `env:"SELECTOR_MESSAGE_INPUT" envDefault:"textarea#message-input"`
	SendButton   string `env:"SELECTOR_SEND_BUTTON" envDefault:"button#send-button"`
	Response     string `env:"SELECTOR_RESPONSE" envDefault:".message.assistant"`
	Reasoning    string `env:"SELECTOR_REASONING" envDefault:".reasoning-content"`
	CopyButton   string `env:"SELECTOR_COPY_BUTTON" envDefault:"button.copy-button"`
	Busy         string `env:"SELECTOR_BUSY" envDefault:".loading, .typing-indicator"`
}

// Load reads an optional .env file and parses the environment into Config.
func Load() (*Config, error) {
	// Missing .env is fine, the process environment still applies
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.TargetBaseURL = strings.TrimRight(strings.TrimSpace(c.TargetBaseURL), "/")
	if _, err := url.ParseRequestURI(c.TargetBaseURL); err != nil {
		return fmt.Errorf("invalid TARGET_BASE_URL: %w", err)
	}

	paths := make([]string, 0, len(c.RemotePaths))
	seen := make(map[string]bool)
	for _, p := range c.RemotePaths {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		return errors.New("REMOTE_PATHS must name at least one path")
	}
	c.RemotePaths = paths

	if c.CacheTTLDays <= 0 {
		return errors.New("CACHE_TTL_DAYS must be positive")
	}

	switch c.CatalogFetchMode {
	case "http", "browser":
	default:
		return fmt.Errorf("unsupported CATALOG_FETCH_MODE %q", c.CatalogFetchMode)
	}

	switch c.BrowserMode {
	case "docker":
	case "remote":
		if c.BrowserWSURL == "" {
			return errors.New("BROWSER_WS_URL is required when BROWSER_MODE=remote")
		}
	default:
		return fmt.Errorf("unsupported BROWSER_MODE %q", c.BrowserMode)
	}

	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.IdlePolls <= 0 {
		c.IdlePolls = 10
	}
	if c.SendRetries <= 0 {
		c.SendRetries = 1
	}
	if c.StreamChunkWords <= 0 {
		c.StreamChunkWords = 10
	}
	return nil
}

// CacheTTL converts the configured day count into a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLDays) * 24 * time.Hour
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
