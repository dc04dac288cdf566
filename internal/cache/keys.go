package cache

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/naka-gawa/github-pr-stats/internal/domain"
)

// Key namespaces.
const (
	NamespaceRepoStats   = "repo-stats"
	NamespaceUserStats   = "user-stats"
	NamespaceBranches    = "branches"
	NamespaceMaintainers = "maintainers"
)

// AllBranches stands in for an empty branch. '*' is not a legal ref character.
const AllBranches = "*"

func repoSegment(owner, repo string) string {
	return strings.ToLower(owner) + "/" + strings.ToLower(repo)
}

func filterSegment(filter domain.TimeFilter) string {
	if filter == "" {
		return string(domain.DefaultTimeFilter)
	}
	return string(filter)
}

// RepoStatsKey builds the key for one (owner, repo, branch, filter) query.
func RepoStatsKey(owner, repo, branch string, filter domain.TimeFilter) string {
	b := AllBranches
	if branch != "" {
		b = url.PathEscape(branch)
	}
	return fmt.Sprintf("%s:%s:%s:%s", NamespaceRepoStats, repoSegment(owner, repo), b, filterSegment(filter))
}

// UserStatsKey builds the key for one (username, filter) query.
func UserStatsKey(username string, filter domain.TimeFilter) string {
	return fmt.Sprintf("%s:%s:%s", NamespaceUserStats, strings.ToLower(username), filterSegment(filter))
}

// BranchesKey builds the key for a repository's branch list.
func BranchesKey(owner, repo string) string {
	return NamespaceBranches + ":" + repoSegment(owner, repo)
}

// MaintainersKey builds the key for a repository's maintainer set.
func MaintainersKey(owner, repo string) string {
	return NamespaceMaintainers + ":" + repoSegment(owner, repo)
}

// RepoStatsPrefix matches every branch and filter variant of a repository's stats.
func RepoStatsPrefix(owner, repo string) string {
	return NamespaceRepoStats + ":" + repoSegment(owner, repo) + ":"
}

// UserStatsPrefix matches every filter variant of a user's stats.
func UserStatsPrefix(username string) string {
	return NamespaceUserStats + ":" + strings.ToLower(username) + ":"
}
