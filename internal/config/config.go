// Package config loads client and server settings from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration.
type Config struct {
	API      API      `yaml:"api"`
	Cache    Cache    `yaml:"cache"`
	Mutation Mutation `yaml:"mutation"`
	Feed     Feed     `yaml:"feed"`
	Session  Session  `yaml:"session"`
	Refine   Refine   `yaml:"refine"`
	Logging  Logging  `yaml:"logging"`
	Server   Server   `yaml:"server"`
}

// API configures the fetch client.
type API struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   Retry         `yaml:"retry"`
}

// Retry bounds read retries.
type Retry struct {
	MaxRetries int           `yaml:"max_retries"`
	Base       time.Duration `yaml:"base"`
	Max        time.Duration `yaml:"max"`
}

// Cache configures the fetch result cache.
type Cache struct {
	Size int                      `yaml:"size"`
	TTL  map[string]time.Duration `yaml:"ttl"`
}

// Mutation configures the per-kind settle delays.
type Mutation struct {
	ConfessionCooldown   time.Duration `yaml:"confession_cooldown"`
	CommentCooldown      time.Duration `yaml:"comment_cooldown"`
	ChildCommentCooldown time.Duration `yaml:"child_comment_cooldown"`
	PostCooldown         time.Duration `yaml:"post_cooldown"`
}

// Feed configures paging and ordering.
type Feed struct {
	PageSize      int           `yaml:"page_size"`
	ReplyPageSize int           `yaml:"reply_page_size"`
	Shuffle       bool          `yaml:"shuffle"`
	ShuffleSeed   uint64        `yaml:"shuffle_seed"`
	LoaderWait    time.Duration `yaml:"loader_wait"`
}

// Session configures the new-session cooldown.
type Session struct {
	Cooldown time.Duration `yaml:"cooldown"`
	KVPath   string        `yaml:"kv_path"`
}

// Refine configures AI text refinement.
type Refine struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Logging configures the structured logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Server configures the reference backend.
type Server struct {
	Port        string `yaml:"port"`
	Storage     string `yaml:"storage"`
	DatabaseURL string `yaml:"database_url"`
}

// Default returns a configuration with every field set.
func Default() *Config {
	return &Config{
		API: API{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
			Retry:   Retry{MaxRetries: 2, Base: time.Second, Max: 30 * time.Second},
		},
		Cache: Cache{
			Size: 512,
			TTL: map[string]time.Duration{
				"feed":     30 * time.Second,
				"detail":   30 * time.Second,
				"comments": 30 * time.Second,
				"replies":  30 * time.Second,
				"users":    10 * time.Minute,
			},
		},
		Mutation: Mutation{
			ConfessionCooldown:   time.Second,
			CommentCooldown:      time.Second,
			ChildCommentCooldown: 500 * time.Millisecond,
			PostCooldown:         time.Second,
		},
		Feed: Feed{
			PageSize:      10,
			ReplyPageSize: 5,
			LoaderWait:    2 * time.Millisecond,
		},
		Session: Session{
			Cooldown: 24 * time.Hour,
			KVPath:   "",
		},
		Refine: Refine{
			Model:   "gemini-2.0-flash",
			Timeout: 60 * time.Second,
		},
		Logging: Logging{Level: "info", Format: "text"},
		Server:  Server{Port: "8080", Storage: "in-memory"},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply. A .env file in the working directory
// is loaded when present.
func Load(path string) (*Config, error) {
	// Missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over cfg and refills fields left empty.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	applyDefaults(cfg)
	return nil
}

func applyDefaults(cfg *Config) {
	defaults := Default()

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaults.API.BaseURL
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = defaults.API.Timeout
	}
	if cfg.API.Retry.Base == 0 {
		cfg.API.Retry.Base = defaults.API.Retry.Base
	}
	if cfg.API.Retry.Max == 0 {
		cfg.API.Retry.Max = defaults.API.Retry.Max
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = defaults.Cache.Size
	}
	if cfg.Cache.TTL == nil {
		cfg.Cache.TTL = map[string]time.Duration{}
	}
	for kind, ttl := range defaults.Cache.TTL {
		if _, ok := cfg.Cache.TTL[kind]; !ok {
			cfg.Cache.TTL[kind] = ttl
		}
	}
	if cfg.Mutation.ConfessionCooldown == 0 {
		cfg.Mutation.ConfessionCooldown = defaults.Mutation.ConfessionCooldown
	}
	if cfg.Mutation.CommentCooldown == 0 {
		cfg.Mutation.CommentCooldown = defaults.Mutation.CommentCooldown
	}
	if cfg.Mutation.ChildCommentCooldown == 0 {
		cfg.Mutation.ChildCommentCooldown = defaults.Mutation.ChildCommentCooldown
	}
	if cfg.Mutation.PostCooldown == 0 {
		cfg.Mutation.PostCooldown = defaults.Mutation.PostCooldown
	}
	if cfg.Feed.PageSize == 0 {
		cfg.Feed.PageSize = defaults.Feed.PageSize
	}
	if cfg.Feed.ReplyPageSize == 0 {
		cfg.Feed.ReplyPageSize = defaults.Feed.ReplyPageSize
	}
	if cfg.Feed.LoaderWait == 0 {
		cfg.Feed.LoaderWait = defaults.Feed.LoaderWait
	}
	if cfg.Session.Cooldown == 0 {
		cfg.Session.Cooldown = defaults.Session.Cooldown
	}
	if cfg.Refine.Model == "" {
		cfg.Refine.Model = defaults.Refine.Model
	}
	if cfg.Refine.Timeout == 0 {
		cfg.Refine.Timeout = defaults.Refine.Timeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.Storage == "" {
		cfg.Server.Storage = defaults.Server.Storage
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONFESS_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Refine.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Server.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
}

// Validate rejects settings the engine cannot run with.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.API.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("api.retry.max_retries must not be negative"))
	}
	if cfg.Cache.Size < 0 {
		errs = append(errs, errors.New("cache.size must be positive"))
	}
	if cfg.Feed.PageSize < 0 || cfg.Feed.ReplyPageSize < 0 {
		errs = append(errs, errors.New("feed page sizes must be positive"))
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", cfg.Logging.Format))
	}
	switch cfg.Server.Storage {
	case "in-memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("server.storage %q must be in-memory or postgres", cfg.Server.Storage))
	}
	return errors.Join(errs...)
}
