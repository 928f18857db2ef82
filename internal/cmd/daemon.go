package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/jobkeep/internal/observability"
	"github.com/3leaps/jobkeep/pkg/jobcache"
	"github.com/3leaps/jobkeep/pkg/probe"
)

var flagDaemonInterval time.Duration

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Periodically refresh job status in the foreground",
	Long: `Run the status update in a loop until interrupted. Each cycle is
one complete load, auto-update and save of the cache, so other jobkeep
invocations interleave freely between cycles.

A cycle that finds the cache locked is skipped, not retried: the next
tick will pick up whatever the other process left behind.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().DurationVar(&flagDaemonInterval, "interval", 0, "time between update cycles (default from config, 60s)")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := cfg.Daemon.Interval
	if flagDaemonInterval > 0 {
		interval = flagDaemonInterval
	}

	prober, err := buildProber()
	if err != nil {
		return err
	}

	observability.CLILogger.Info("daemon started",
		zap.Duration("interval", interval),
		zap.String("cache", cachePath()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		daemonCycle(ctx, prober)
		select {
		case <-ctx.Done():
			observability.CLILogger.Info("daemon stopping", zap.Error(context.Cause(ctx)))
			return nil
		case <-ticker.C:
		}
	}
}

// daemonCycle runs one update pass. The prober is reset first: its
// captures belong to one pass, and a daemon that classifies against the
// previous tick's listings would never see a job finish. Lock contention
// and transient failures are logged and swallowed; the daemon only stops
// on signal.
func daemonCycle(ctx context.Context, prober *probe.Prober) {
	prober.Reset()
	transitions, err := updateCycle(ctx, prober)
	if err != nil {
		if jobcache.IsLock(err) {
			logLockSkip("daemon cycle", err)
			return
		}
		observability.CLILogger.Warn("update cycle failed", zap.Error(err))
		return
	}
	for _, tr := range transitions {
		observability.CLILogger.Info("job status changed",
			zap.String("hostname", tr.Hostname),
			zap.String("job_id", tr.JobID),
			zap.String("from", tr.From.String()),
			zap.String("to", tr.To.String()))
	}
}
