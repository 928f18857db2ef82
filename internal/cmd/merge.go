package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/jobkeep/internal/observability"
	"github.com/3leaps/jobkeep/pkg/jobcache"
	"github.com/3leaps/jobkeep/pkg/transfer"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <[[user@]host:]cache | s3://bucket/key> [hostname]",
	Short: "Merge another cache into this one",
	Long: `Merge the jobs from another cache file into the local cache.

The other cache may be a local file, an [user@]host:path specification
copied over scp (password-free access required), or an s3://bucket/key
object. The other cache's localhost server is filed under the given
hostname; for scp sources the hostname defaults to the remote host, for
local files and s3 objects it must be supplied.

Conflicts between copies of the same job are resolved by modification
time: the later write wins.

Examples:
  jobkeep merge alice@cluster1.example.org:.cache/jobkeep/jobkeep.cache
  jobkeep merge /tmp/cluster1.cache cluster1
  jobkeep merge s3://hpc-caches/cluster1.cache cluster1`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	hostname := ""
	if len(args) == 2 {
		hostname = args[1]
	}

	fetched, err := transfer.Fetch(ctx, args[0], hostname)
	if err != nil {
		return classifyError("Cannot fetch remote cache", err)
	}
	defer fetched.Cleanup()

	cache, err := openCache()
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	other, err := jobcache.Open(fetched.Path, cacheConfig())
	if err != nil {
		return classifyError("Cannot open fetched cache", err)
	}
	defer func() { _ = other.Close() }()

	if err := cache.Load(ctx); err != nil {
		return classifyError("Cannot load cache", err)
	}
	if err := other.Load(ctx); err != nil {
		return classifyError("Cannot load fetched cache", err)
	}
	if err := cache.Merge(other, fetched.Hostname); err != nil {
		return classifyError("Cannot merge caches", err)
	}
	if err := cache.Dump(ctx); err != nil {
		return classifyError("Cannot save cache", err)
	}

	observability.CLILogger.Info("merged cache",
		zap.String("source", args[0]),
		zap.String("hostname", fetched.Hostname))
	return nil
}
