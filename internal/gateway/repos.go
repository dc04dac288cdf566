package gateway

import (
	"context"
	"fmt"

	"github.com/google/go-github/v62/github"
	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/github-pr-stats/internal/domain"
)

// writePermissions are the collaborator permission flags that make an account a maintainer.
var writePermissions = []string{"admin", "maintain", "push"}

// FetchBranches lists branch names, capped at BranchPageCap pages.
func (g *GitHubGateway) FetchBranches(ctx context.Context, owner, repo string) ([]string, error) {
	resource := owner + "/" + repo
	g.logger.WithFields(logrus.Fields{"owner": owner, "repo": repo}).Debug("Fetching branches...")

	fetch := func(ctx context.Context, page int) ([]*github.Branch, error) {
		callCtx, cancel := g.callContext(ctx)
		defer cancel()
		opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: PageSize, Page: page}}
		branches, _, err := g.restClient.Repositories.ListBranches(callCtx, owner, repo, opts)
		if err != nil {
			return nil, g.classify(err, resource)
		}
		return branches, nil
	}
	limits := pageLimits{PageCap: g.bounds.BranchPageCap, PerPage: PageSize}
	raw, _, err := paginate(ctx, limits, fetch, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", g.classify(err, resource))
	}
	names := make([]string, 0, len(raw))
	for _, b := range raw {
		names = append(names, b.GetName())
	}
	return names, nil
}

// FetchMaintainers returns the logins holding push, maintain or admin permission.
// Listing collaborators needs push access itself, so callers should treat errors as "no maintainers".
func (g *GitHubGateway) FetchMaintainers(ctx context.Context, owner, repo string) ([]string, error) {
	resource := owner + "/" + repo
	g.logger.WithFields(logrus.Fields{"owner": owner, "repo": repo}).Debug("Fetching collaborators...")

	fetch := func(ctx context.Context, page int) ([]*github.User, error) {
		callCtx, cancel := g.callContext(ctx)
		defer cancel()
		opts := &github.ListCollaboratorsOptions{ListOptions: github.ListOptions{PerPage: PageSize, Page: page}}
		users, _, err := g.restClient.Repositories.ListCollaborators(callCtx, owner, repo, opts)
		if err != nil {
			return nil, g.classify(err, resource)
		}
		return users, nil
	}
	limits := pageLimits{PageCap: g.bounds.CollaboratorPageCap, PerPage: PageSize}
	raw, _, err := paginate(ctx, limits, fetch, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborators: %w", g.classify(err, resource))
	}

	maintainers := make([]string, 0)
	for _, u := range raw {
		for _, perm := range writePermissions {
			if u.Permissions[perm] {
				maintainers = append(maintainers, u.GetLogin())
				break
			}
		}
	}
	return maintainers, nil
}

// FetchUser loads the public profile of a GitHub account.
func (g *GitHubGateway) FetchUser(ctx context.Context, username string) (domain.UserProfile, error) {
	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	user, _, err := g.restClient.Users.Get(callCtx, username)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("failed to get user: %w", g.classify(err, username))
	}
	return domain.UserProfile{
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		AvatarURL: user.GetAvatarURL(),
		Bio:       user.GetBio(),
		Location:  user.GetLocation(),
		Followers: user.GetFollowers(),
		Following: user.GetFollowing(),
	}, nil
}
