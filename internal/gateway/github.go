// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/github-pr-stats/internal/domain"
)

// PageSize is the number of items requested per REST page.
const PageSize = 100

// Fetcher defines the behavior of a gateway for fetching information from GitHub.
type Fetcher interface {
	FetchPullRequests(ctx context.Context, owner, repo, branch string, since time.Time) ([]domain.PullRequest, error)
	SearchUserPullRequests(ctx context.Context, username string, since time.Time) ([]domain.PullRequest, error)
	FetchBranches(ctx context.Context, owner, repo string) ([]string, error)
	FetchMaintainers(ctx context.Context, owner, repo string) ([]string, error)
	FetchUser(ctx context.Context, username string) (domain.UserProfile, error)
	FetchReviews(ctx context.Context, owner, repo, branch string, since time.Time) ([]PRReviewData, error)
	RateLimitStatus(ctx context.Context) (domain.RateLimitStatus, error)
	SetAuthToken(token string)
}

// Bounds caps how much history a single query may pull.
type Bounds struct {
	PullPageCap         int
	PullItemCap         int
	SearchPageCap       int
	SearchItemCap       int
	BranchPageCap       int
	CollaboratorPageCap int
	ReviewPageCap       int
}

// DefaultBounds returns the caps used when none are configured.
func DefaultBounds() Bounds {
	return Bounds{
		PullPageCap:         10,
		PullItemCap:         1000,
		SearchPageCap:       3,
		SearchItemCap:       300,
		BranchPageCap:       5,
		CollaboratorPageCap: 3,
		ReviewPageCap:       5,
	}
}

// Options configures a GitHubGateway.
type Options struct {
	Token               string
	BaseURL             string
	GraphQLURL          string
	RequestTimeout      time.Duration
	RateLimitSleepLimit time.Duration
	Bounds              Bounds
	Now                 func() time.Time
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	tokens        *tokenSource
	timeout       time.Duration
	bounds        Bounds
	now           func() time.Time
	logger        *logrus.Logger
}

var _ Fetcher = (*GitHubGateway)(nil)

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
// An empty token is allowed; requests are then sent unauthenticated with a lower quota.
func NewGitHubGateway(opts Options, logger *logrus.Logger) (*GitHubGateway, error) {
	if opts.RateLimitSleepLimit <= 0 {
		opts.RateLimitSleepLimit = 10 * time.Second
	}
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(opts.RateLimitSleepLimit, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	tokens := &tokenSource{}
	tokens.Set(opts.Token)
	httpClient := &http.Client{Transport: newAuthTransport(tokens, rateLimitWaiter)}

	restClient := github.NewClient(httpClient)
	if opts.BaseURL != "" {
		baseURL, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("failed to parse GitHub API URL: %w", err)
		}
		restClient.BaseURL = baseURL
	}
	graphqlClient := githubv4.NewClient(httpClient)
	if opts.GraphQLURL != "" {
		graphqlClient = githubv4.NewEnterpriseClient(opts.GraphQLURL, httpClient)
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.Bounds == (Bounds{}) {
		opts.Bounds = DefaultBounds()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		tokens:        tokens,
		timeout:       opts.RequestTimeout,
		bounds:        opts.Bounds,
		now:           opts.Now,
		logger:        logger,
	}, nil
}

// SetAuthToken replaces the credential used by subsequent requests.
func (g *GitHubGateway) SetAuthToken(token string) {
	g.tokens.Set(token)
	g.logger.WithField("authenticated", token != "").Debug("GitHub credential updated")
}

// callContext bounds a single upstream call.
func (g *GitHubGateway) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// RateLimitStatus probes the remaining core REST quota.
func (g *GitHubGateway) RateLimitStatus(ctx context.Context) (domain.RateLimitStatus, error) {
	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	limits, _, err := g.restClient.RateLimit.Get(callCtx)
	if err != nil {
		return domain.RateLimitStatus{}, fmt.Errorf("failed to fetch rate limit: %w", g.classify(err, "rate_limit"))
	}
	core := limits.GetCore()
	if core == nil {
		return domain.RateLimitStatus{}, nil
	}
	return domain.RateLimitStatus{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
	}, nil
}
