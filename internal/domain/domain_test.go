package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeFilter_StartDate(t *testing.T) {
	now := time.Date(2024, time.June, 15, 13, 45, 0, 0, time.UTC)
	testCases := []struct {
		filter   TimeFilter
		expected time.Time
	}{
		{FilterTwoWeeks, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)},
		{FilterOneMonth, time.Date(2024, time.May, 16, 0, 0, 0, 0, time.UTC)},
		{FilterThreeMonths, time.Date(2024, time.March, 17, 0, 0, 0, 0, time.UTC)},
		{FilterSixMonths, time.Date(2023, time.December, 18, 0, 0, 0, 0, time.UTC)},
		{FilterAll, time.Unix(0, 0).UTC()},
	}
	for _, tc := range testCases {
		t.Run(string(tc.filter), func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.filter.StartDate(now))
		})
	}
}

func TestTimeFilter_TwoWeeksWindowEdges(t *testing.T) {
	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	start := FilterTwoWeeks.StartDate(now)

	assert.True(t, time.Date(2024, time.May, 30, 12, 0, 0, 0, time.UTC).Before(start))
	assert.False(t, time.Date(2024, time.June, 2, 12, 0, 0, 0, time.UTC).Before(start))
}

func TestParseTimeFilter(t *testing.T) {
	f, err := ParseTimeFilter("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeFilter, f)

	f, err = ParseTimeFilter("all")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	_, err = ParseTimeFilter("1y")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDaysBetween(t *testing.T) {
	start := time.Date(2024, time.June, 1, 23, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.June, 15, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 14, DaysBetween(start, end))
	assert.Equal(t, 0, DaysBetween(end, end))
}

func TestPullRequest_Outcome(t *testing.T) {
	assert.Equal(t, OutcomeMerged, PullRequest{State: StateClosed, Merged: true}.Outcome())
	assert.Equal(t, OutcomeOpen, PullRequest{State: StateOpen}.Outcome())
	assert.Equal(t, OutcomeClosed, PullRequest{State: StateClosed}.Outcome())
}

func TestPullRequest_Owner(t *testing.T) {
	testCases := map[string]string{
		"octo/hello": "octo",
		"octo":       "octo",
		"":           "",
	}
	for repository, expected := range testCases {
		assert.Equal(t, expected, PullRequest{Repository: repository}.Owner(), repository)
	}
}

func TestValidation(t *testing.T) {
	testCases := []struct {
		name    string
		check   func() error
		invalid bool
	}{
		{"valid repository", func() error { return ValidateRepository("naka-gawa", "github-stats") }, false},
		{"repository with dots", func() error { return ValidateRepository("golang", "go.dev") }, false},
		{"empty owner", func() error { return ValidateRepository("", "repo") }, true},
		{"owner with leading hyphen", func() error { return ValidateRepository("-bad", "repo") }, true},
		{"repo with slash", func() error { return ValidateRepository("owner", "a/b") }, true},
		{"dot repo", func() error { return ValidateRepository("owner", "..") }, true},
		{"valid username", func() error { return ValidateUsername("octocat") }, false},
		{"username with double hyphen", func() error { return ValidateUsername("octo--cat") }, true},
		{"empty branch means all", func() error { return ValidateBranch("") }, false},
		{"nested branch", func() error { return ValidateBranch("release/v1.2") }, false},
		{"branch with colon", func() error { return ValidateBranch("a:b") }, true},
		{"branch with star", func() error { return ValidateBranch("*") }, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.check()
			if tc.invalid {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	reset := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	cause := errors.New("403 API rate limit exceeded")
	err := fmt.Errorf("failed to list pull requests: %w", &APIError{
		Kind:       ErrRateLimited,
		Resource:   "octo/hello",
		StatusCode: 403,
		ResetAt:    reset,
		Err:        cause,
	})

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "octo/hello")

	got, ok := ResetTime(err)
	require.True(t, ok)
	assert.Equal(t, reset, got)

	_, ok = ResetTime(&APIError{Kind: ErrNotFound, Resource: "octo/missing"})
	assert.False(t, ok)
}
