package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspects and evicts cached results",
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Evicts cached results of a repository or a user",
	Long: `Evicts every cached result of a repository (all branches and time windows, its
branch list and maintainer set) or of a user, so the next query refetches from GitHub.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoArg, _ := cmd.Flags().GetString("repo")
		user, _ := cmd.Flags().GetString("user")
		if (repoArg == "") == (user == "") {
			return fmt.Errorf("exactly one of --repo or --user is required")
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var removed int
		if repoArg != "" {
			owner, repo, err := parseRepoArg(repoArg)
			if err != nil {
				return err
			}
			removed, err = a.service.InvalidateRepository(cmd.Context(), owner, repo)
			if err != nil {
				return err
			}
		} else {
			removed, err = a.service.InvalidateUser(cmd.Context(), user)
			if err != nil {
				return err
			}
		}
		result := map[string]int{"removed": removed}
		return render(cmd, result, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "Removed %d cached entries.\n", removed)
			return err
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Shows the cache backend, its health and configured TTLs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats := a.service.CacheStats()
		ttls := map[string]string{
			"repoStats":   a.cfg.Cache.TTLRepoStats.String(),
			"userStats":   a.cfg.Cache.TTLUserStats.String(),
			"branches":    a.cfg.Cache.TTLBranches.String(),
			"maintainers": a.cfg.Cache.TTLMaintainers.String(),
			"session":     a.cfg.Cache.TTLSession.String(),
		}
		result := struct {
			Stats any               `json:"stats"`
			TTLs  map[string]string `json:"ttls"`
		}{Stats: stats, TTLs: ttls}
		return render(cmd, result, func(w io.Writer) error {
			return writeTable(w, "", pterm.TableData{
				{"Backend", "Degraded", "Repo stats TTL", "User stats TTL", "Branches TTL", "Maintainers TTL", "Session TTL"},
				{stats.Backend, strconv.FormatBool(stats.Degraded), ttls["repoStats"], ttls["userStats"], ttls["branches"], ttls["maintainers"], ttls["session"]},
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheFlushCmd, cacheStatsCmd)
	cacheFlushCmd.Flags().String("repo", "", "Repository to evict (owner/repo)")
	cacheFlushCmd.Flags().String("user", "", "User to evict")
}
