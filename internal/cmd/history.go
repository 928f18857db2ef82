package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/jobkeep/pkg/history"
	"github.com/3leaps/jobkeep/pkg/output"
)

var (
	flagHistoryServer string
	flagHistoryJob    string
	flagHistorySince  string
	flagHistoryLimit  int
	flagHistoryJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded status transitions",
	Long: `List the status transitions recorded by update and daemon runs,
newest first. Requires history.enabled in the config.

Examples:
  jobkeep history
  jobkeep history --job co2_1 --limit 20
  jobkeep history --since 2026-08-01T00:00:00Z --json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&flagHistoryServer, "server", "", "only transitions on this server")
	historyCmd.Flags().StringVar(&flagHistoryJob, "job", "", "only transitions of this job id")
	historyCmd.Flags().StringVar(&flagHistorySince, "since", "", "only transitions at or after this RFC3339 time")
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 50, "maximum number of transitions (0 = all)")
	historyCmd.Flags().BoolVar(&flagHistoryJSON, "json", false, "emit transitions as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !cfg.History.Enabled {
		return exitError(foundry.ExitInvalidArgument, "History is not enabled", fmt.Errorf("set history.enabled in the config"))
	}

	var since time.Time
	if flagHistorySince != "" {
		parsed, err := time.Parse(time.RFC3339, flagHistorySince)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --since time", err)
		}
		since = parsed
	}

	store, err := history.Open(ctx, history.Config{Path: cfg.History.Path})
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot open history store", err)
	}
	defer func() { _ = store.Close() }()

	transitions, err := store.List(ctx, history.Query{
		Hostname: flagHistoryServer,
		JobID:    flagHistoryJob,
		Since:    since,
		Limit:    flagHistoryLimit,
	})
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read history", err)
	}

	if flagHistoryJSON {
		return output.EncodeJSON(os.Stdout, transitions)
	}
	if len(transitions) == 0 {
		return nil
	}
	table := output.NewTable([]string{"changed_at", "hostname", "job_id", "from", "to"})
	for _, tr := range transitions {
		table.AddRow([]string{
			tr.ChangedAt.Format(time.RFC3339),
			tr.Hostname,
			tr.JobID,
			tr.From,
			tr.To,
		})
	}
	return table.Render(os.Stdout)
}
