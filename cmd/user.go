package cmd

import (
	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-pr-stats/internal/domain"
)

var userCmd = &cobra.Command{
	Use:   "user <username>",
	Short: "Summarizes pull requests authored by a user",
	Long: `Summarizes the pull requests a user opened within the time window across all
repositories, together with the user's public profile.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.service.FetchUserStats(cmd.Context(), args[0], domain.TimeFilter(filter))
		if err != nil {
			return err
		}
		return render(cmd, stats, userTable(stats))
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.Flags().StringP("filter", "t", string(domain.DefaultTimeFilter), "Time window: 2w, 1m, 3m, 6m or all")
}
