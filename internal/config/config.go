// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Cache backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

var configValidator = newConfigValidator()

type Config struct {
	GitHub GitHubConf `validate:"required"`
	Cache  CacheConf  `validate:"required"`
	Limits LimitsConf `validate:"required"`
	Log    LogConf    `validate:"required"`
}

type GitHubConf struct {
	Token               string
	APIURL              string        `validate:"omitempty,url"`
	GraphQLURL          string        `validate:"omitempty,url"`
	RequestTimeout      time.Duration `validate:"gt=0"`
	RateLimitSleepLimit time.Duration `validate:"gte=0"`
}

type CacheConf struct {
	Backend         string        `validate:"cache-backend"`
	RedisURL        string        `validate:"required_if=Backend redis"`
	PostgresDSN     string        `validate:"required_if=Backend postgres"`
	ReprobeInterval time.Duration `validate:"gt=0"`
	CleanupInterval time.Duration `validate:"gt=0"`
	TTLRepoStats    time.Duration `validate:"gt=0"`
	TTLUserStats    time.Duration `validate:"gt=0"`
	TTLBranches     time.Duration `validate:"gt=0"`
	TTLMaintainers  time.Duration `validate:"gt=0"`
	TTLSession      time.Duration `validate:"gt=0"`
}

// LimitsConf caps pagination cost per query.
type LimitsConf struct {
	PRPageCap     int `validate:"min=1"`
	PRItemCap     int `validate:"min=1"`
	SearchPageCap int `validate:"min=1"`
	SearchItemCap int `validate:"min=1"`
	BranchPageCap int `validate:"min=1"`
	ReviewPageCap int `validate:"min=1"`
}

type LogConf struct {
	Level  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `validate:"oneof=text json"`
}

func newConfigValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("cache-backend", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case BackendMemory, BackendRedis, BackendPostgres:
			return true
		}
		return false
	}); err != nil {
		panic(err)
	}
	return v
}

// Load reads a .env file from the working directory when present, then the process
// environment, applies defaults and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	p := &parser{}
	cfg := &Config{
		GitHub: GitHubConf{
			Token:               os.Getenv("GITHUB_TOKEN"),
			APIURL:              os.Getenv("GITHUB_API_URL"),
			GraphQLURL:          os.Getenv("GITHUB_GRAPHQL_URL"),
			RequestTimeout:      p.duration("GITHUB_REQUEST_TIMEOUT", 15*time.Second),
			RateLimitSleepLimit: p.duration("GITHUB_RATELIMIT_SLEEP_LIMIT", 10*time.Second),
		},
		Cache: CacheConf{
			Backend:         getEnv("CACHE_BACKEND", BackendMemory),
			RedisURL:        os.Getenv("REDIS_URL"),
			PostgresDSN:     os.Getenv("POSTGRES_DSN"),
			ReprobeInterval: p.duration("CACHE_REPROBE_INTERVAL", 30*time.Second),
			CleanupInterval: p.duration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
			TTLRepoStats:    p.duration("TTL_REPO_STATS", 5*time.Minute),
			TTLUserStats:    p.duration("TTL_USER_STATS", 10*time.Minute),
			TTLBranches:     p.duration("TTL_BRANCHES", time.Hour),
			TTLMaintainers:  p.duration("TTL_MAINTAINERS", 30*time.Minute),
			TTLSession:      p.duration("TTL_SESSION", 24*time.Hour),
		},
		Limits: LimitsConf{
			PRPageCap:     p.integer("PR_PAGE_CAP", 10),
			PRItemCap:     p.integer("PR_ITEM_CAP", 1000),
			SearchPageCap: p.integer("SEARCH_PAGE_CAP", 3),
			SearchItemCap: p.integer("SEARCH_ITEM_CAP", 300),
			BranchPageCap: p.integer("BRANCH_PAGE_CAP", 5),
			ReviewPageCap: p.integer("REVIEW_PAGE_CAP", 5),
		},
		Log: LogConf{
			Level:  getEnv("LOG_LEVEL", "warn"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration. Call it again after applying flag overrides.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser keeps the first conversion error so Load can report it after reading every variable.
type parser struct {
	err error
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("invalid duration in %s: %w", key, err)
		}
		return defaultValue
	}
	return d
}

func (p *parser) integer(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("invalid integer in %s: %w", key, err)
		}
		return defaultValue
	}
	return n
}
