package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-pr-stats/internal/cache"
	"github.com/naka-gawa/github-pr-stats/internal/config"
	"github.com/naka-gawa/github-pr-stats/internal/gateway"
	"github.com/naka-gawa/github-pr-stats/internal/usecase"
)

// app owns the process-wide components and their shutdown.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	cache   *cache.Cache
	service *usecase.Service
	stop    context.CancelFunc
	done    chan struct{}
}

// newApp loads configuration, applies flag overrides and wires the engine.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if token, _ := cmd.Flags().GetString("token"); token != "" {
		cfg.GitHub.Token = token
	}
	if backend, _ := cmd.Flags().GetString("cache"); backend != "" {
		cfg.Cache.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger, err := newLogger(cfg.Log, verbose)
	if err != nil {
		return nil, err
	}

	primary, err := openStore(cmd.Context(), cfg.Cache)
	if err != nil {
		return nil, err
	}
	c := cache.New(cache.Options{Primary: primary, ReprobeInterval: cfg.Cache.ReprobeInterval}, logger)

	bounds := gateway.DefaultBounds()
	bounds.PullPageCap = cfg.Limits.PRPageCap
	bounds.PullItemCap = cfg.Limits.PRItemCap
	bounds.SearchPageCap = cfg.Limits.SearchPageCap
	bounds.SearchItemCap = cfg.Limits.SearchItemCap
	bounds.BranchPageCap = cfg.Limits.BranchPageCap
	bounds.ReviewPageCap = cfg.Limits.ReviewPageCap
	githubGateway, err := gateway.NewGitHubGateway(gateway.Options{
		Token:               cfg.GitHub.Token,
		BaseURL:             cfg.GitHub.APIURL,
		GraphQLURL:          cfg.GitHub.GraphQLURL,
		RequestTimeout:      cfg.GitHub.RequestTimeout,
		RateLimitSleepLimit: cfg.GitHub.RateLimitSleepLimit,
		Bounds:              bounds,
	}, logger)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to create GitHub gateway: %w", err)
	}
	if cfg.GitHub.Token == "" {
		logger.Warn("GITHUB_TOKEN is not set; requests are unauthenticated and heavily rate limited")
	}

	service := usecase.NewService(githubGateway, c, usecase.Options{
		TTLs: usecase.TTLs{
			RepoStats:   cfg.Cache.TTLRepoStats,
			UserStats:   cfg.Cache.TTLUserStats,
			Branches:    cfg.Cache.TTLBranches,
			Maintainers: cfg.Cache.TTLMaintainers,
		},
	}, logger)

	ctx, stop := context.WithCancel(context.Background())
	a := &app{cfg: cfg, logger: logger, cache: c, service: service, stop: stop, done: make(chan struct{})}
	go a.runCleanup(ctx, cfg.Cache.CleanupInterval)
	return a, nil
}

// runCleanup sweeps expired cache entries until ctx is cancelled.
func (a *app) runCleanup(ctx context.Context, interval time.Duration) {
	defer close(a.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cache.Cleanup(ctx)
		}
	}
}

// Close stops background work and releases the cache backend.
func (a *app) Close() {
	a.stop()
	<-a.done
	if err := a.cache.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close cache backend")
	}
}

func newLogger(conf config.LogConf, verbose bool) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(conf.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	if conf.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// openStore returns the shared cache store for the configured backend, or nil for the
// in-process store alone. Neither shared store connects here: an unreachable server is
// handled by the cache's degraded mode and re-probed later.
func openStore(ctx context.Context, conf config.CacheConf) (cache.Store, error) {
	switch conf.Backend {
	case config.BackendRedis:
		store, err := cache.NewRedisStore(conf.RedisURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendPostgres:
		store, err := cache.NewPostgresStore(ctx, conf.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}
