package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/github-pr-stats/internal/domain"
)

// Review states as reported by the GraphQL API.
const (
	ReviewApproved         = "APPROVED"
	ReviewChangesRequested = "CHANGES_REQUESTED"
	ReviewCommented        = "COMMENTED"
)

// PRReviewData holds the review timeline of a single pull request.
type PRReviewData struct {
	Number    int
	CreatedAt time.Time
	Reviews   []Review
}

// Review is one submitted review.
type Review struct {
	Author      string
	State       string
	SubmittedAt time.Time
}

// prReviewQuery searches pull requests and pulls their submitted reviews in one round trip.
type prReviewQuery struct {
	Search struct {
		PageInfo struct {
			HasNextPage bool
			EndCursor   githubv4.String
		}
		Edges []struct {
			Node struct {
				Typename    string `graphql:"__typename"`
				PullRequest struct {
					Number    githubv4.Int
					CreatedAt githubv4.DateTime
					Reviews   struct {
						Nodes []struct {
							Author struct {
								Login githubv4.String
							}
							State       githubv4.String
							SubmittedAt githubv4.DateTime
						}
					} `graphql:"reviews(first: 50, states: [COMMENTED, APPROVED, CHANGES_REQUESTED])"`
				} `graphql:"... on PullRequest"`
			}
		}
	} `graphql:"search(query: $query, type: ISSUE, first: 20, after: $cursor)"` // Use a smaller page size for this complex query
}

// ReviewSearchQuery builds the search qualifiers selecting a repository's pull requests in the window.
func ReviewSearchQuery(owner, repo, branch string, since time.Time) string {
	q := fmt.Sprintf("repo:%s/%s is:pr created:>=%s sort:created-desc", owner, repo, since.UTC().Format(domain.DayLayout))
	if branch != "" {
		q += " base:" + branch
	}
	return q
}

// FetchReviews fetches review timelines for the repository's pull requests, capped at ReviewPageCap pages.
func (g *GitHubGateway) FetchReviews(ctx context.Context, owner, repo, branch string, since time.Time) ([]PRReviewData, error) {
	resource := owner + "/" + repo
	log := g.logger.WithFields(logrus.Fields{"owner": owner, "repo": repo, "branch": branch})
	log.Debug("Fetching review data...")

	variables := map[string]interface{}{
		"query":  githubv4.String(ReviewSearchQuery(owner, repo, branch, since)),
		"cursor": (*githubv4.String)(nil),
	}

	data := make([]PRReviewData, 0)
	for page := 1; page <= g.bounds.ReviewPageCap; page++ {
		var q prReviewQuery
		callCtx, cancel := g.callContext(ctx)
		err := g.graphqlClient.Query(callCtx, &q, variables)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to execute GraphQL query for reviews: %w", g.classify(err, resource))
		}

		for _, edge := range q.Search.Edges {
			if edge.Node.Typename != "PullRequest" {
				continue
			}
			prNode := edge.Node.PullRequest
			pr := PRReviewData{
				Number:    int(prNode.Number),
				CreatedAt: prNode.CreatedAt.Time,
				Reviews:   make([]Review, 0, len(prNode.Reviews.Nodes)),
			}
			for _, r := range prNode.Reviews.Nodes {
				if r.SubmittedAt.IsZero() {
					continue
				}
				pr.Reviews = append(pr.Reviews, Review{
					Author:      string(r.Author.Login),
					State:       string(r.State),
					SubmittedAt: r.SubmittedAt.Time,
				})
			}
			data = append(data, pr)
		}

		if !q.Search.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(q.Search.PageInfo.EndCursor)
		log.WithField("page", page).Debug("  Fetching next page of PRs for review analysis...")
	}
	log.Debugf("Completed fetching review data for %d pull requests.", len(data))
	return data, nil
}
