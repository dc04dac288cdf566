// Package usecase contains the business logic of the application.
package usecase

import (
	"sort"
	"strings"
	"time"

	"github.com/naka-gawa/github-pr-stats/internal/domain"
)

// RecentPRLimit is the number of most recent pull requests kept in repository stats.
const RecentPRLimit = 10

// Aggregation is the pure reduction of a pull request set.
type Aggregation struct {
	Contributors []domain.ContributorStats
	Labels       map[string]int
	Timeline     []domain.ActivityDataPoint
}

// Aggregate reduces prs into contributor rollups, a label distribution and a dense daily
// timeline over [start, today]. It performs no I/O and its output depends only on its input.
func Aggregate(prs []domain.PullRequest, maintainers []string, start, today time.Time) Aggregation {
	return Aggregation{
		Contributors: Contributors(prs, maintainers),
		Labels:       LabelDistribution(prs),
		Timeline:     Timeline(prs, start, today),
	}
}

func maintainerSet(maintainers []string) map[string]bool {
	set := make(map[string]bool, len(maintainers))
	for _, m := range maintainers {
		set[strings.ToLower(m)] = true
	}
	return set
}

// Contributors groups prs by author. The result is sorted by TotalPRs descending; ties keep
// the order in which authors were first seen.
func Contributors(prs []domain.PullRequest, maintainers []string) []domain.ContributorStats {
	isMaintainer := maintainerSet(maintainers)
	index := make(map[string]int)
	contributors := make([]domain.ContributorStats, 0)

	for _, pr := range prs {
		i, ok := index[pr.Author]
		if !ok {
			i = len(contributors)
			index[pr.Author] = i
			contributors = append(contributors, domain.ContributorStats{
				Login:        pr.Author,
				IsMaintainer: isMaintainer[strings.ToLower(pr.Author)],
			})
		}
		c := &contributors[i]
		if c.AvatarURL == "" {
			c.AvatarURL = pr.AuthorAvatar
		}
		c.TotalPRs++
		switch pr.Outcome() {
		case domain.OutcomeMerged:
			c.MergedPRs++
		case domain.OutcomeOpen:
			c.OpenPRs++
		default:
			c.ClosedPRs++
		}
		c.TotalAdditions += pr.Additions
		c.TotalDeletions += pr.Deletions
	}

	sort.SliceStable(contributors, func(i, j int) bool {
		return contributors[i].TotalPRs > contributors[j].TotalPRs
	})
	return contributors
}

// LabelDistribution counts label occurrences byte-for-byte.
func LabelDistribution(prs []domain.PullRequest) map[string]int {
	labels := make(map[string]int)
	for _, pr := range prs {
		for _, label := range pr.Labels {
			labels[label]++
		}
	}
	return labels
}

// Timeline builds one bucket per calendar day in [start, today]. Events falling outside the
// range are dropped from the timeline only.
func Timeline(prs []domain.PullRequest, start, today time.Time) []domain.ActivityDataPoint {
	first := domain.StartOfDay(start)
	days := domain.DaysBetween(first, today)
	if days < 0 {
		return []domain.ActivityDataPoint{}
	}

	timeline := make([]domain.ActivityDataPoint, days+1)
	index := make(map[string]int, days+1)
	for i := range timeline {
		date := first.AddDate(0, 0, i).Format(domain.DayLayout)
		timeline[i].Date = date
		index[date] = i
	}
	bucket := func(t time.Time) *domain.ActivityDataPoint {
		i, ok := index[t.UTC().Format(domain.DayLayout)]
		if !ok {
			return nil
		}
		return &timeline[i]
	}

	for _, pr := range prs {
		if b := bucket(pr.CreatedAt); b != nil {
			b.Opened++
		}
		switch {
		case pr.Merged && pr.MergedAt != nil:
			if b := bucket(*pr.MergedAt); b != nil {
				b.Merged++
			}
		case pr.State == domain.StateClosed && pr.ClosedAt != nil:
			if b := bucket(*pr.ClosedAt); b != nil {
				b.Closed++
			}
		}
	}
	return timeline
}

// RecentPullRequests returns up to limit pull requests, newest first.
func RecentPullRequests(prs []domain.PullRequest, limit int) []domain.PullRequest {
	recent := make([]domain.PullRequest, len(prs))
	copy(recent, prs)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}
	return recent
}

// AverageMergeHours is the mean creation-to-merge time of the merged pull requests in prs.
func AverageMergeHours(prs []domain.PullRequest) float64 {
	hours := make([]float64, 0, len(prs))
	for _, pr := range prs {
		if pr.Merged && pr.MergedAt != nil {
			hours = append(hours, pr.MergedAt.Sub(pr.CreatedAt).Hours())
		}
	}
	return meanOrZero(hours)
}

// UserRollup derives the per-repository map and totals for a user's pull requests.
// A user maintains a repository when it is owned by the user.
func UserRollup(username string, prs []domain.PullRequest) (map[string]domain.UserRepoStats, domain.TotalStats) {
	repos := make(map[string]domain.UserRepoStats)
	var totals domain.TotalStats
	for _, pr := range prs {
		repo := repos[pr.Repository]
		repo.PRCount++
		repo.IsMaintainer = strings.EqualFold(pr.Owner(), username)
		totals.TotalPRs++
		switch pr.Outcome() {
		case domain.OutcomeMerged:
			repo.MergedCount++
			totals.MergedPRs++
		case domain.OutcomeOpen:
			totals.OpenPRs++
		default:
			totals.ClosedPRs++
		}
		if repo.IsMaintainer {
			totals.IsMaintainer = true
		}
		repos[pr.Repository] = repo
	}
	return repos, totals
}
