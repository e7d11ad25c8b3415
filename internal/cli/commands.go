package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var (
	sinceHours   int
	listingLimit int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, feed consumers, job workers and the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context())
	},
}

var featurizeCmd = &cobra.Command{
	Use:   "featurize",
	Short: "Refresh feature snapshots for recently sold cards",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := getApp().Featurize(cmd.Context(), sinceHours)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score recent listings into signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := getApp().Score(cmd.Context(), listingLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the primary store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	featurizeCmd.Flags().IntVar(&sinceHours, "since-hours", 24, "Refresh cards with sales in the last N hours")
	scoreCmd.Flags().IntVar(&listingLimit, "limit", 200, "Score at most N of the newest listings")
}
