package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/jobkeep/internal/observability"
	"github.com/3leaps/jobkeep/pkg/history"
	"github.com/3leaps/jobkeep/pkg/jobcache"
	"github.com/3leaps/jobkeep/pkg/probe"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Refresh the status of jobs on this machine",
	Long: `Refresh the status of every live job on localhost by inspecting
process and queue listings (ps, qstat, llq). Jobs found in none of them
are marked finished. Finished and analysed jobs are left alone.

Jobs on other hosts are never touched; their status arrives through
merge.`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	prober, err := buildProber()
	if err != nil {
		return err
	}
	transitions, err := updateCycle(cmd.Context(), prober)
	if err != nil {
		return err
	}
	for _, tr := range transitions {
		fmt.Printf("%s/%s: %s -> %s\n", tr.Hostname, tr.JobID, tr.From, tr.To)
	}
	return nil
}

// buildProber compiles the configured probe sources, or the built-in
// ps/qstat/llq set when no manifest is configured.
func buildProber() (*probe.Prober, error) {
	sources := probe.DefaultSources()
	if cfg.Probe.SourcesFile != "" {
		loaded, err := probe.LoadSources(cfg.Probe.SourcesFile)
		if err != nil {
			return nil, classifyError("Cannot load probe sources", err)
		}
		sources = loaded
	}
	prober, err := probe.New(sources)
	if err != nil {
		return nil, classifyError("Cannot compile probe sources", err)
	}
	return prober, nil
}

// updateCycle runs one load -> auto-update -> dump pass over the cache
// and records the resulting transitions in the history store when one
// is configured.
func updateCycle(ctx context.Context, prober *probe.Prober) ([]jobcache.Transition, error) {
	cache, err := openCache()
	if err != nil {
		return nil, err
	}
	defer func() { _ = cache.Close() }()

	if err := cache.Load(ctx); err != nil {
		return nil, classifyError("Cannot load cache", err)
	}
	transitions, err := cache.AutoUpdate(ctx, prober)
	if err != nil {
		return nil, classifyError("Cannot update job status", err)
	}
	if err := cache.Dump(ctx); err != nil {
		return nil, classifyError("Cannot save cache", err)
	}

	if err := recordTransitions(ctx, transitions); err != nil {
		// History is an audit trail, not the source of truth. A failed
		// write must not undo a status update that already persisted.
		observability.CLILogger.Warn("failed to record history", zap.Error(err))
	}
	return transitions, nil
}

// recordTransitions appends the cycle's transitions to the history
// store, stamped with a fresh run id.
func recordTransitions(ctx context.Context, transitions []jobcache.Transition) error {
	if !cfg.History.Enabled || len(transitions) == 0 {
		return nil
	}
	store, err := history.Open(ctx, history.Config{Path: cfg.History.Path})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runID := uuid.NewString()
	records := make([]history.Transition, 0, len(transitions))
	for _, tr := range transitions {
		records = append(records, history.Transition{
			Hostname: tr.Hostname,
			JobID:    tr.JobID,
			From:     tr.From.String(),
			To:       tr.To.String(),
			RunID:    runID,
		})
	}
	return store.Append(ctx, records)
}
