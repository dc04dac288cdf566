package usecase

import (
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/naka-gawa/github-pr-stats/internal/domain"
	"github.com/naka-gawa/github-pr-stats/internal/gateway"
)

// AggregateReviews rolls review timelines up per reviewer. Reviewers are sorted by review
// count descending, ties by login. Time to first review is measured from PR creation.
func AggregateReviews(data []gateway.PRReviewData) domain.ReviewStats {
	result := domain.ReviewStats{Available: true, Reviewers: []domain.ReviewerStats{}}
	byLogin := make(map[string]*domain.ReviewerStats)
	firstReviewHours := make([]float64, 0, len(data))

	for _, pr := range data {
		if len(pr.Reviews) == 0 {
			continue
		}
		result.ReviewedPRs++
		first := pr.Reviews[0].SubmittedAt
		for _, review := range pr.Reviews {
			result.TotalReviews++
			if review.SubmittedAt.Before(first) {
				first = review.SubmittedAt
			}
			r, ok := byLogin[review.Author]
			if !ok {
				r = &domain.ReviewerStats{Login: review.Author}
				byLogin[review.Author] = r
			}
			r.Reviews++
			switch review.State {
			case gateway.ReviewApproved:
				r.Approvals++
			case gateway.ReviewChangesRequested:
				r.ChangesRequested++
			case gateway.ReviewCommented:
				r.Comments++
			}
		}
		if hours := first.Sub(pr.CreatedAt).Hours(); hours >= 0 {
			firstReviewHours = append(firstReviewHours, hours)
		}
	}

	for _, r := range byLogin {
		result.Reviewers = append(result.Reviewers, *r)
	}
	sort.Slice(result.Reviewers, func(i, j int) bool {
		if result.Reviewers[i].Reviews != result.Reviewers[j].Reviews {
			return result.Reviewers[i].Reviews > result.Reviewers[j].Reviews
		}
		return result.Reviewers[i].Login < result.Reviewers[j].Login
	})

	result.MeanHoursToFirstReview = meanOrZero(firstReviewHours)
	if median, err := stats.Median(firstReviewHours); err == nil {
		result.MedianHoursToFirstReview = median
	}
	return result
}

// meanOrZero returns 0 for an empty sample instead of an error.
func meanOrZero(values []float64) float64 {
	mean, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return mean
}
