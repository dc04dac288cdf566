package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/github-pr-stats/internal/domain"
)

// FetchPullRequests lists pull requests of a repository, newest first, created at or after since.
// An empty branch lists pull requests against every base branch.
func (g *GitHubGateway) FetchPullRequests(ctx context.Context, owner, repo, branch string, since time.Time) ([]domain.PullRequest, error) {
	resource := owner + "/" + repo
	log := g.logger.WithFields(logrus.Fields{"owner": owner, "repo": repo, "branch": branch})
	log.Debug("Fetching pull requests...")

	fetch := func(ctx context.Context, page int) ([]*github.PullRequest, error) {
		callCtx, cancel := g.callContext(ctx)
		defer cancel()
		opts := &github.PullRequestListOptions{
			State:       "all",
			Base:        branch,
			Sort:        "created",
			Direction:   "desc",
			ListOptions: github.ListOptions{PerPage: PageSize, Page: page},
		}
		prs, _, err := g.restClient.PullRequests.List(callCtx, owner, repo, opts)
		if err != nil {
			return nil, g.classify(err, resource)
		}
		log.WithField("page", page).Debugf("  Fetched %d pull requests", len(prs))
		return prs, nil
	}
	limits := pageLimits{
		PageCap: g.bounds.PullPageCap,
		ItemCap: g.bounds.PullItemCap,
		PerPage: PageSize,
		Since:   since,
	}
	raw, requests, err := paginate(ctx, limits, fetch, func(pr *github.PullRequest) time.Time {
		return pr.GetCreatedAt().Time
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pull requests: %w", g.classify(err, resource))
	}

	prs := make([]domain.PullRequest, 0, len(raw))
	for _, pr := range raw {
		prs = append(prs, fromPullRequest(pr, resource))
	}
	log.Debugf("Completed fetching %d pull requests in %d requests.", len(prs), requests)
	return prs, nil
}

// SearchUserPullRequests finds pull requests authored by username through the issue search API.
func (g *GitHubGateway) SearchUserPullRequests(ctx context.Context, username string, since time.Time) ([]domain.PullRequest, error) {
	query := SearchQuery(username, since)
	log := g.logger.WithField("user", username)
	log.Debugf("Searching pull requests: %s", query)

	fetch := func(ctx context.Context, page int) ([]*github.Issue, error) {
		callCtx, cancel := g.callContext(ctx)
		defer cancel()
		opts := &github.SearchOptions{
			Sort:        "created",
			Order:       "desc",
			ListOptions: github.ListOptions{PerPage: PageSize, Page: page},
		}
		result, _, err := g.restClient.Search.Issues(callCtx, query, opts)
		if err != nil {
			return nil, g.classify(err, username)
		}
		log.WithField("page", page).Debugf("  Found %d of %d pull requests", len(result.Issues), result.GetTotal())
		return result.Issues, nil
	}
	limits := pageLimits{
		PageCap: g.bounds.SearchPageCap,
		ItemCap: g.bounds.SearchItemCap,
		PerPage: PageSize,
		Since:   since,
	}
	raw, requests, err := paginate(ctx, limits, fetch, func(issue *github.Issue) time.Time {
		return issue.GetCreatedAt().Time
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search pull requests: %w", g.classify(err, username))
	}

	prs := make([]domain.PullRequest, 0, len(raw))
	for _, issue := range raw {
		if !issue.IsPullRequest() {
			continue
		}
		prs = append(prs, fromSearchIssue(issue))
	}
	log.Debugf("Completed searching %d pull requests in %d requests.", len(prs), requests)
	return prs, nil
}

// SearchQuery builds the issue-search qualifier string for a user's pull requests.
func SearchQuery(username string, since time.Time) string {
	return fmt.Sprintf("author:%s is:pr created:>=%s", username, since.UTC().Format(domain.DayLayout))
}

func fromPullRequest(pr *github.PullRequest, resource string) domain.PullRequest {
	out := domain.PullRequest{
		Number:         pr.GetNumber(),
		Title:          pr.GetTitle(),
		State:          pr.GetState(),
		CreatedAt:      pr.GetCreatedAt().Time,
		MergedAt:       timePtr(pr.MergedAt),
		ClosedAt:       timePtr(pr.ClosedAt),
		Author:         pr.GetUser().GetLogin(),
		AuthorAvatar:   pr.GetUser().GetAvatarURL(),
		Repository:     resource,
		BaseBranch:     pr.GetBase().GetRef(),
		Labels:         labelNames(pr.Labels),
		Additions:      pr.GetAdditions(),
		Deletions:      pr.GetDeletions(),
		ChangedFiles:   pr.GetChangedFiles(),
		ReviewComments: pr.GetReviewComments(),
	}
	if name := pr.GetBase().GetRepo().GetFullName(); name != "" {
		out.Repository = name
	}
	normalizeMerge(&out, pr.GetMerged())
	return out
}

func fromSearchIssue(issue *github.Issue) domain.PullRequest {
	mergedAt := issue.GetPullRequestLinks().GetMergedAt()
	out := domain.PullRequest{
		Number:       issue.GetNumber(),
		Title:        issue.GetTitle(),
		State:        issue.GetState(),
		CreatedAt:    issue.GetCreatedAt().Time,
		MergedAt:     timePtr(&mergedAt),
		ClosedAt:     timePtr(issue.ClosedAt),
		Author:       issue.GetUser().GetLogin(),
		AuthorAvatar: issue.GetUser().GetAvatarURL(),
		Repository:   repoFromURL(issue.GetRepositoryURL()),
		Labels:       labelNames(issue.Labels),
	}
	normalizeMerge(&out, false)
	return out
}

// normalizeMerge enforces merged => closed with a merge timestamp.
func normalizeMerge(pr *domain.PullRequest, mergedFlag bool) {
	pr.Merged = mergedFlag || pr.MergedAt != nil
	if !pr.Merged {
		return
	}
	pr.State = domain.StateClosed
	if pr.MergedAt == nil {
		at := pr.CreatedAt
		if pr.ClosedAt != nil {
			at = *pr.ClosedAt
		}
		pr.MergedAt = &at
	}
}

func labelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}
	return names
}

func timePtr(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}

// repoFromURL turns ".../repos/owner/name" into "owner/name".
func repoFromURL(u string) string {
	parts := strings.Split(strings.TrimSuffix(u, "/"), "/")
	if len(parts) < 2 {
		return u
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}
