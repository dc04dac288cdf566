package domain

import "time"

// ContributorStats is the per-author rollup of a pull request set.
// TotalPRs always equals MergedPRs + OpenPRs + ClosedPRs.
type ContributorStats struct {
	Login          string `json:"login"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	TotalPRs       int    `json:"total_prs"`
	MergedPRs      int    `json:"merged_prs"`
	OpenPRs        int    `json:"open_prs"`
	ClosedPRs      int    `json:"closed_prs"`
	IsMaintainer   bool   `json:"is_maintainer"`
	TotalAdditions int    `json:"total_additions"`
	TotalDeletions int    `json:"total_deletions"`
}

// ActivityDataPoint holds the counts for one calendar day (YYYY-MM-DD).
type ActivityDataPoint struct {
	Date   string `json:"date"`
	Opened int    `json:"opened"`
	Merged int    `json:"merged"`
	Closed int    `json:"closed"`
}

// ReviewerStats is the per-reviewer rollup of submitted reviews.
type ReviewerStats struct {
	Login            string `json:"login"`
	Reviews          int    `json:"reviews"`
	Approvals        int    `json:"approvals"`
	ChangesRequested int    `json:"changes_requested"`
	Comments         int    `json:"comments"`
}

// ReviewStats summarizes review activity for the pull requests in a query window.
// Available is false when reviews could not be fetched.
type ReviewStats struct {
	Available                bool            `json:"available"`
	TotalReviews             int             `json:"total_reviews"`
	ReviewedPRs              int             `json:"reviewed_prs"`
	MeanHoursToFirstReview   float64         `json:"mean_hours_to_first_review"`
	MedianHoursToFirstReview float64         `json:"median_hours_to_first_review"`
	Reviewers                []ReviewerStats `json:"reviewers"`
}

// RepositoryStats is the aggregate returned for a repository query.
type RepositoryStats struct {
	Owner         string              `json:"owner"`
	Repo          string              `json:"repo"`
	Branch        string              `json:"branch"`
	TimeFilter    TimeFilter          `json:"time_filter"`
	TotalPRs      int                 `json:"total_prs"`
	AvgMergeHours float64             `json:"avg_merge_hours"`
	Contributors  []ContributorStats  `json:"contributors"`
	RecentPRs     []PullRequest       `json:"recent_prs"`
	Labels        map[string]int      `json:"labels"`
	Timeline      []ActivityDataPoint `json:"timeline"`
	Reviews       ReviewStats         `json:"reviews"`
	GeneratedAt   time.Time           `json:"generated_at"`
}

// UserRepoStats is a user's activity within one repository.
type UserRepoStats struct {
	PRCount      int  `json:"pr_count"`
	MergedCount  int  `json:"merged_count"`
	IsMaintainer bool `json:"is_maintainer"`
}

// TotalStats is the user-level rollup; it mirrors ContributorStats without line counts.
type TotalStats struct {
	TotalPRs     int  `json:"total_prs"`
	MergedPRs    int  `json:"merged_prs"`
	OpenPRs      int  `json:"open_prs"`
	ClosedPRs    int  `json:"closed_prs"`
	IsMaintainer bool `json:"is_maintainer"`
}

// UserProfile holds the public profile fields shown next to user stats.
type UserProfile struct {
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Location  string `json:"location,omitempty"`
	Followers int    `json:"followers"`
	Following int    `json:"following"`
}

// UserProfileStats is the aggregate returned for a user query.
type UserProfileStats struct {
	Username     string                   `json:"username"`
	Profile      UserProfile              `json:"profile"`
	TimeFilter   TimeFilter               `json:"time_filter"`
	Repositories map[string]UserRepoStats `json:"repositories"`
	PullRequests []PullRequest            `json:"pull_requests"`
	Totals       TotalStats               `json:"totals"`
	Timeline     []ActivityDataPoint      `json:"timeline"`
	GeneratedAt  time.Time                `json:"generated_at"`
}

// RateLimitStatus is the remaining core REST quota of the current credential.
type RateLimitStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}
