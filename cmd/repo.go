package cmd

import (
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-pr-stats/internal/domain"
)

var repoCmd = &cobra.Command{
	Use:   "repo <owner>/<repo>",
	Short: "Summarizes pull request activity of a repository",
	Long: `Summarizes the pull requests of a repository created within the time window:
contributors, labels, a daily activity timeline and review statistics.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, repo, err := parseRepoArg(args[0])
		if err != nil {
			return err
		}
		branch, _ := cmd.Flags().GetString("branch")
		filter, _ := cmd.Flags().GetString("filter")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.service.FetchRepositoryStats(cmd.Context(), owner, repo, branch, domain.TimeFilter(filter))
		if err != nil {
			return err
		}
		return render(cmd, stats, repositoryTable(stats))
	},
}

var contributorsCmd = &cobra.Command{
	Use:   "contributors <owner>/<repo>",
	Short: "Lists the contributors of a repository ranked by pull requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, repo, err := parseRepoArg(args[0])
		if err != nil {
			return err
		}
		branch, _ := cmd.Flags().GetString("branch")
		filter, _ := cmd.Flags().GetString("filter")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		contributors, err := a.service.FetchContributors(cmd.Context(), owner, repo, branch, domain.TimeFilter(filter))
		if err != nil {
			return err
		}
		return render(cmd, contributors, func(w io.Writer) error {
			return writeTable(w, "", contributorRows(contributors))
		})
	},
}

var branchesCmd = &cobra.Command{
	Use:   "branches <owner>/<repo>",
	Short: "Lists the branches of a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, repo, err := parseRepoArg(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		branches, err := a.service.FetchBranches(cmd.Context(), owner, repo)
		if err != nil {
			return err
		}
		return render(cmd, branches, func(w io.Writer) error {
			data := pterm.TableData{{"Branch"}}
			for _, b := range branches {
				data = append(data, []string{b})
			}
			return writeTable(w, "", data)
		})
	},
}

// parseRepoArg splits "owner/repo".
func parseRepoArg(arg string) (string, string, error) {
	owner, repo, ok := strings.Cut(arg, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", domain.NewValidationError("repository", arg, "must be in the form owner/repo")
	}
	return owner, repo, nil
}

func init() {
	rootCmd.AddCommand(repoCmd, contributorsCmd, branchesCmd)
	for _, c := range []*cobra.Command{repoCmd, contributorsCmd} {
		c.Flags().StringP("branch", "b", "", "Only count pull requests targeting this branch")
		c.Flags().StringP("filter", "t", string(domain.DefaultTimeFilter), "Time window: 2w, 1m, 3m, 6m or all")
	}
}
