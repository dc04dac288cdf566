package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/github-pr-stats/internal/cache"
	"github.com/naka-gawa/github-pr-stats/internal/domain"
	"github.com/naka-gawa/github-pr-stats/internal/gateway"
)

// TTLs sets how long each class of result stays cached.
type TTLs struct {
	RepoStats   time.Duration
	UserStats   time.Duration
	Branches    time.Duration
	Maintainers time.Duration
}

// DefaultTTLs returns the cache TTLs used when none are configured.
func DefaultTTLs() TTLs {
	return TTLs{
		RepoStats:   cache.TTLRepoStats,
		UserStats:   cache.TTLUserStats,
		Branches:    cache.TTLBranches,
		Maintainers: cache.TTLMaintainers,
	}
}

// Options configures a Service.
type Options struct {
	TTLs TTLs
	Now  func() time.Time
}

// Service is the analytics engine: it validates queries, serves them through the
// read-through cache and computes misses from the GitHub gateway.
type Service struct {
	fetcher gateway.Fetcher
	cache   *cache.Cache
	ttls    TTLs
	now     func() time.Time
	logger  *logrus.Logger
}

// NewService creates a new Service instance.
func NewService(fetcher gateway.Fetcher, c *cache.Cache, opts Options, logger *logrus.Logger) *Service {
	if opts.TTLs == (TTLs{}) {
		opts.TTLs = DefaultTTLs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		fetcher: fetcher,
		cache:   c,
		ttls:    opts.TTLs,
		now:     opts.Now,
		logger:  logger,
	}
}

func normalizeFilter(filter domain.TimeFilter) (domain.TimeFilter, error) {
	return domain.ParseTimeFilter(string(filter))
}

func validateRepoQuery(owner, repo, branch string, filter domain.TimeFilter) (domain.TimeFilter, error) {
	if err := domain.ValidateRepository(owner, repo); err != nil {
		return "", err
	}
	if err := domain.ValidateBranch(branch); err != nil {
		return "", err
	}
	return normalizeFilter(filter)
}

// FetchRepositoryStats returns the statistics of a repository's pull requests within the
// time window, optionally restricted to one target branch.
func (s *Service) FetchRepositoryStats(ctx context.Context, owner, repo, branch string, filter domain.TimeFilter) (*domain.RepositoryStats, error) {
	filter, err := validateRepoQuery(owner, repo, branch, filter)
	if err != nil {
		return nil, err
	}
	key := cache.RepoStatsKey(owner, repo, branch, filter)
	return cache.GetOrCompute(ctx, s.cache, key, s.ttls.RepoStats, func(ctx context.Context) (*domain.RepositoryStats, error) {
		return s.computeRepositoryStats(ctx, owner, repo, branch, filter)
	})
}

func (s *Service) computeRepositoryStats(ctx context.Context, owner, repo, branch string, filter domain.TimeFilter) (*domain.RepositoryStats, error) {
	log := s.logger.WithFields(logrus.Fields{"owner": owner, "repo": repo, "branch": branch, "filter": filter})
	log.Debug("Computing repository stats...")

	now := s.now()
	since := filter.StartDate(now)

	var prs []domain.PullRequest
	var maintainers []string
	var reviews domain.ReviewStats

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		prs, err = s.fetcher.FetchPullRequests(egCtx, owner, repo, branch, since)
		return err
	})
	eg.Go(func() error {
		maintainers = s.maintainers(egCtx, owner, repo)
		return nil
	})
	eg.Go(func() error {
		reviews = s.reviews(egCtx, owner, repo, branch, since)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	agg := Aggregate(prs, maintainers, since, now)
	log.WithField("prs", len(prs)).Debug("Repository stats computed.")
	return &domain.RepositoryStats{
		Owner:         owner,
		Repo:          repo,
		Branch:        branch,
		TimeFilter:    filter,
		TotalPRs:      len(prs),
		AvgMergeHours: AverageMergeHours(prs),
		Contributors:  agg.Contributors,
		RecentPRs:     RecentPullRequests(prs, RecentPRLimit),
		Labels:        agg.Labels,
		Timeline:      agg.Timeline,
		Reviews:       reviews,
		GeneratedAt:   now,
	}, nil
}

// maintainers looks up the repository's maintainer set. Failures degrade to an empty set.
func (s *Service) maintainers(ctx context.Context, owner, repo string) []string {
	key := cache.MaintainersKey(owner, repo)
	logins, err := cache.GetOrCompute(ctx, s.cache, key, s.ttls.Maintainers, func(ctx context.Context) ([]string, error) {
		return s.fetcher.FetchMaintainers(ctx, owner, repo)
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{"owner": owner, "repo": repo}).WithError(err).
			Warn("Maintainer lookup failed; continuing without maintainers")
		return []string{}
	}
	return logins
}

// reviews fetches and rolls up reviews. Failures yield unavailable review stats.
func (s *Service) reviews(ctx context.Context, owner, repo, branch string, since time.Time) domain.ReviewStats {
	data, err := s.fetcher.FetchReviews(ctx, owner, repo, branch, since)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"owner": owner, "repo": repo, "branch": branch}).WithError(err).
			Warn("Review lookup failed; review stats unavailable")
		return domain.ReviewStats{Reviewers: []domain.ReviewerStats{}}
	}
	return AggregateReviews(data)
}

// FetchUserStats returns the statistics of the pull requests a user authored within the time window.
func (s *Service) FetchUserStats(ctx context.Context, username string, filter domain.TimeFilter) (*domain.UserProfileStats, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	key := cache.UserStatsKey(username, filter)
	return cache.GetOrCompute(ctx, s.cache, key, s.ttls.UserStats, func(ctx context.Context) (*domain.UserProfileStats, error) {
		return s.computeUserStats(ctx, username, filter)
	})
}

func (s *Service) computeUserStats(ctx context.Context, username string, filter domain.TimeFilter) (*domain.UserProfileStats, error) {
	log := s.logger.WithFields(logrus.Fields{"user": username, "filter": filter})
	log.Debug("Computing user stats...")

	now := s.now()
	since := filter.StartDate(now)

	var prs []domain.PullRequest
	var profile domain.UserProfile

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		profile, err = s.fetcher.FetchUser(egCtx, username)
		return err
	})
	eg.Go(func() error {
		var err error
		prs, err = s.fetcher.SearchUserPullRequests(egCtx, username, since)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	repos, totals := UserRollup(username, prs)
	log.WithField("prs", len(prs)).Debug("User stats computed.")
	return &domain.UserProfileStats{
		Username:     username,
		Profile:      profile,
		TimeFilter:   filter,
		Repositories: repos,
		PullRequests: prs,
		Totals:       totals,
		Timeline:     Timeline(prs, since, now),
		GeneratedAt:  now,
	}, nil
}

// FetchBranches returns the repository's branch names.
func (s *Service) FetchBranches(ctx context.Context, owner, repo string) ([]string, error) {
	if err := domain.ValidateRepository(owner, repo); err != nil {
		return nil, err
	}
	return cache.GetOrCompute(ctx, s.cache, cache.BranchesKey(owner, repo), s.ttls.Branches, func(ctx context.Context) ([]string, error) {
		return s.fetcher.FetchBranches(ctx, owner, repo)
	})
}

// FetchContributors returns the contributor rollup of a repository query. It shares the
// cached repository stats.
func (s *Service) FetchContributors(ctx context.Context, owner, repo, branch string, filter domain.TimeFilter) ([]domain.ContributorStats, error) {
	stats, err := s.FetchRepositoryStats(ctx, owner, repo, branch, filter)
	if err != nil {
		return nil, err
	}
	return stats.Contributors, nil
}

// GetRateLimitStatus reports the remaining quota of the current credential. It is never cached.
func (s *Service) GetRateLimitStatus(ctx context.Context) (domain.RateLimitStatus, error) {
	return s.fetcher.RateLimitStatus(ctx)
}

// SetAuthToken replaces the credential used by subsequent upstream calls.
func (s *Service) SetAuthToken(token string) {
	s.fetcher.SetAuthToken(token)
}

// InvalidateRepository evicts every cached result for a repository and returns the number
// of entries removed. It fails when the shared cache could not be reached; the evictions
// are then applied once it recovers.
func (s *Service) InvalidateRepository(ctx context.Context, owner, repo string) (int, error) {
	if err := domain.ValidateRepository(owner, repo); err != nil {
		return 0, err
	}
	removed, err := s.cache.DeleteByPrefix(ctx, cache.RepoStatsPrefix(owner, repo))
	for _, key := range []string{cache.BranchesKey(owner, repo), cache.MaintainersKey(owner, repo)} {
		if s.cache.Exists(ctx, key) {
			removed++
		}
		err = errors.Join(err, s.cache.Delete(ctx, key))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate %s/%s: %w", owner, repo, err)
	}
	s.logger.WithFields(logrus.Fields{"owner": owner, "repo": repo, "removed": removed}).Debug("Repository cache invalidated.")
	return removed, nil
}

// InvalidateUser evicts every cached result for a user.
func (s *Service) InvalidateUser(ctx context.Context, username string) (int, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return 0, err
	}
	removed, err := s.cache.DeleteByPrefix(ctx, cache.UserStatsPrefix(username))
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate user %s: %w", username, err)
	}
	s.logger.WithFields(logrus.Fields{"user": username, "removed": removed}).Debug("User cache invalidated.")
	return removed, nil
}

// CacheStats reports cache health.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}
