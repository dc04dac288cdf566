package cmd

import (
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Shows the remaining GitHub API quota of the current token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.service.GetRateLimitStatus(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, status, func(w io.Writer) error {
			return writeTable(w, "", pterm.TableData{
				{"Limit", "Remaining", "Resets at"},
				{strconv.Itoa(status.Limit), strconv.Itoa(status.Remaining), status.ResetAt.Local().Format(time.RFC1123)},
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(rateLimitCmd)
}
