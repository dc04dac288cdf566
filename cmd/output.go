package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-pr-stats/internal/cache"
	"github.com/naka-gawa/github-pr-stats/internal/domain"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// render writes v as indented JSON, or through table when the table format is selected.
func render(cmd *cobra.Command, v any, table func(w io.Writer) error) error {
	format, _ := cmd.Flags().GetString("format")
	w := cmd.OutOrStdout()
	switch format {
	case formatJSON, "":
		jsonData, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results to JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(jsonData))
		return err
	case formatTable:
		return table(w)
	default:
		return domain.NewValidationError("format", format, "must be json or table")
	}
}

func writeTable(w io.Writer, title string, data pterm.TableData) error {
	if title != "" {
		if _, err := fmt.Fprintln(w, pterm.Bold.Sprint(title)); err != nil {
			return err
		}
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func contributorRows(contributors []domain.ContributorStats) pterm.TableData {
	data := pterm.TableData{{"Login", "Total", "Merged", "Open", "Closed", "+", "-", "Maintainer"}}
	for _, c := range contributors {
		data = append(data, []string{
			c.Login,
			strconv.Itoa(c.TotalPRs),
			strconv.Itoa(c.MergedPRs),
			strconv.Itoa(c.OpenPRs),
			strconv.Itoa(c.ClosedPRs),
			strconv.Itoa(c.TotalAdditions),
			strconv.Itoa(c.TotalDeletions),
			strconv.FormatBool(c.IsMaintainer),
		})
	}
	return data
}

func labelRows(labels map[string]int) pterm.TableData {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if labels[names[i]] != labels[names[j]] {
			return labels[names[i]] > labels[names[j]]
		}
		return names[i] < names[j]
	})
	data := pterm.TableData{{"Label", "PRs"}}
	for _, name := range names {
		data = append(data, []string{name, strconv.Itoa(labels[name])})
	}
	return data
}

func repositoryTable(stats *domain.RepositoryStats) func(io.Writer) error {
	return func(w io.Writer) error {
		branch := stats.Branch
		if branch == "" {
			branch = "(all)"
		}
		summary := pterm.TableData{
			{"Metric", "Value"},
			{"Repository", stats.Owner + "/" + stats.Repo},
			{"Branch", branch},
			{"Window", string(stats.TimeFilter)},
			{"Pull requests", strconv.Itoa(stats.TotalPRs)},
			{"Avg hours to merge", fmt.Sprintf("%.1f", stats.AvgMergeHours)},
		}
		if stats.Reviews.Available {
			summary = append(summary,
				[]string{"Reviews", strconv.Itoa(stats.Reviews.TotalReviews)},
				[]string{"Median hours to first review", fmt.Sprintf("%.1f", stats.Reviews.MedianHoursToFirstReview)},
			)
		}
		if err := writeTable(w, "Summary", summary); err != nil {
			return err
		}
		if err := writeTable(w, "Contributors", contributorRows(stats.Contributors)); err != nil {
			return err
		}
		if len(stats.Labels) > 0 {
			return writeTable(w, "Labels", labelRows(stats.Labels))
		}
		return nil
	}
}

func userTable(stats *domain.UserProfileStats) func(io.Writer) error {
	return func(w io.Writer) error {
		summary := pterm.TableData{
			{"Metric", "Value"},
			{"User", stats.Username},
			{"Window", string(stats.TimeFilter)},
			{"Pull requests", strconv.Itoa(stats.Totals.TotalPRs)},
			{"Merged", strconv.Itoa(stats.Totals.MergedPRs)},
			{"Open", strconv.Itoa(stats.Totals.OpenPRs)},
			{"Closed", strconv.Itoa(stats.Totals.ClosedPRs)},
			{"Followers", strconv.Itoa(stats.Profile.Followers)},
		}
		if err := writeTable(w, "Summary", summary); err != nil {
			return err
		}
		names := make([]string, 0, len(stats.Repositories))
		for name := range stats.Repositories {
			names = append(names, name)
		}
		sort.Strings(names)
		repos := pterm.TableData{{"Repository", "PRs", "Merged", "Maintainer"}}
		for _, name := range names {
			r := stats.Repositories[name]
			repos = append(repos, []string{name, strconv.Itoa(r.PRCount), strconv.Itoa(r.MergedCount), strconv.FormatBool(r.IsMaintainer)})
		}
		return writeTable(w, "Repositories", repos)
	}
}

// describeError turns classified failures into actionable messages.
func describeError(err error) string {
	var apiErr *domain.APIError
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		if reset, ok := domain.ResetTime(err); ok {
			return pterm.Red(fmt.Sprintf("Error: GitHub rate limit exceeded; resets at %s (in %s).",
				reset.Local().Format(time.RFC1123), time.Until(reset).Round(time.Second)))
		}
		return pterm.Red("Error: GitHub rate limit exceeded; try again later.")
	case errors.Is(err, domain.ErrNotFound) && errors.As(err, &apiErr):
		return pterm.Red(fmt.Sprintf("Error: %s was not found on GitHub.", apiErr.Resource))
	case errors.Is(err, cache.ErrBackendUnavailable):
		return pterm.Red("Error: the cache backend is unreachable, so its entries were not evicted; retry once it is back.")
	case errors.Is(err, domain.ErrUnauthorized):
		return pterm.Red("Error: GitHub rejected the credential; refresh GITHUB_TOKEN or pass --token.")
	default:
		return pterm.Red(fmt.Sprintf("Error: %v", err))
	}
}
