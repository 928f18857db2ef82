package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/jobkeep/internal/observability"
	"github.com/3leaps/jobkeep/pkg/history"
	"github.com/3leaps/jobkeep/pkg/jobcache"
	"github.com/3leaps/jobkeep/pkg/probe"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the jobkeep environment and suggest fixes
for common issues.

Examples:
  jobkeep doctor`,
	Args: cobra.NoArgs,
	Run:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) {
	observability.CLILogger.Info("=== jobkeep doctor ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 5
	if cfg.History.Enabled {
		totalChecks = 6
	}

	// Check 1: Environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	// Check 2: Cache directory writable
	cacheDir := filepath.Dir(cachePath())
	if err := checkDirWritable(cacheDir); err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking cache directory... ❌ %s is not writable", checkNum, totalChecks, cacheDir),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking cache directory... ✅ %s", checkNum, totalChecks, cacheDir),
			zap.String("cache_dir", cacheDir))
	}
	checkNum++

	// Check 3: Lock state
	allChecks = checkLockState(checkNum, totalChecks) && allChecks
	checkNum++

	// Check 4: Probe sources manifest
	sources := probe.DefaultSources()
	if cfg.Probe.SourcesFile != "" {
		loaded, err := probe.LoadSources(cfg.Probe.SourcesFile)
		if err != nil {
			observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking probe sources... ❌ %s is invalid", checkNum, totalChecks, cfg.Probe.SourcesFile),
				zap.Error(err))
			allChecks = false
		} else {
			sources = loaded
			observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking probe sources... ✅ %s (%d sources)", checkNum, totalChecks, cfg.Probe.SourcesFile, len(sources.Sources)),
				zap.String("sources_file", cfg.Probe.SourcesFile))
		}
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking probe sources... ✅ built-in (%d sources)", checkNum, totalChecks, len(sources.Sources)))
	}
	checkNum++

	// Check 5: Probe commands on PATH. Missing queue commands are normal
	// on machines that are not batch submit hosts, so this never fails
	// the run.
	available := 0
	for _, src := range sources.Sources {
		if len(src.Command) == 0 {
			continue
		}
		if _, err := exec.LookPath(src.Command[0]); err != nil {
			observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking probe commands... ⚠️  %s not found (source %q will be skipped)", checkNum, totalChecks, src.Command[0], src.Name),
				zap.String("source", src.Name))
			continue
		}
		available++
	}
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking probe commands... ✅ %d/%d available", checkNum, totalChecks, available, len(sources.Sources)))
	checkNum++

	// Check 6: History store
	if cfg.History.Enabled {
		store, err := history.Open(cmd.Context(), history.Config{Path: cfg.History.Path})
		if err != nil {
			observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking history store... ❌ cannot open %s", checkNum, totalChecks, cfg.History.Path),
				zap.Error(err))
			allChecks = false
		} else {
			_ = store.Close()
			observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking history store... ✅ %s", checkNum, totalChecks, cfg.History.Path),
				zap.String("history_path", cfg.History.Path))
		}
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info("✅ All checks passed! Your jobkeep installation is healthy.")
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// checkDirWritable creates the directory if needed and probes it with a
// throwaway temp file.
func checkDirWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".jobkeep-doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// checkLockState inspects the cache lock file and whether its holder is
// still alive. A dead holder means a crashed invocation left the lock
// behind.
func checkLockState(checkNum, totalChecks int) bool {
	cache, err := openCache()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking cache lock... ❌ cannot resolve cache path", checkNum, totalChecks),
			zap.Error(err))
		return false
	}

	lockPath := cache.LockPath()
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking cache lock... ✅ not held", checkNum, totalChecks))
		return true
	}

	pid, alive := jobcache.LockHolder(lockPath)
	if alive {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking cache lock... ✅ held by running pid %d", checkNum, totalChecks, pid),
			zap.Int("holder_pid", pid))
		return true
	}
	observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking cache lock... ⚠️  stale lock at %s (holder pid %d is gone)", checkNum, totalChecks, lockPath, pid),
		zap.String("lock_path", lockPath),
		zap.Int("holder_pid", pid))
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To clear a stale lock:")
	observability.CLILogger.Info(fmt.Sprintf("  rm %s", lockPath))
	observability.CLILogger.Info("or enable lock.take_over_stale in the config to reclaim it automatically.")
	observability.CLILogger.Info("")
	return false
}
