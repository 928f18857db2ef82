// Package cmd implements the jobkeep command-line interface.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/jobkeep/internal/config"
	"github.com/3leaps/jobkeep/internal/observability"
	"github.com/3leaps/jobkeep/pkg/jobcache"
	"github.com/3leaps/jobkeep/pkg/transfer"
)

// versionInfo is stamped by the build via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	flagCache      string
	flagConfigFile string
	flagLogLevel   string

	// cfg is loaded once in the root PersistentPreRunE and read by every
	// command.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "jobkeep",
	Short: "Track long-running computational jobs across servers",
	Long: `jobkeep tracks long-running computational jobs (HPC batch or
interactive calculations) across named servers. Job metadata persists in
a cache file between invocations; job status on this machine can be
refreshed automatically by inspecting process and queue listings.

The machine running jobkeep is always called "localhost". It is the only
host whose jobs are auto-updated; jobs on other hosts are bookkeeping
entries merged in from their own caches.`,
	Version:       "", // set in Execute once versionInfo is stamped
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cmd.Context(), flagConfigFile)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
		}
		cfg = loaded

		level := cfg.Logging.Level
		if flagLogLevel != "" {
			level = flagLogLevel
		}
		if err := observability.InitCLILogger(level, cfg.Logging.Format); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to initialize logging", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagCache, "cache", "c", "", "cache file holding stored job data (default $HOME/.cache/jobkeep/jobkeep.cache)")
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default $HOME/.config/jobkeep/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
}

// cachePath resolves the cache file path: --cache beats config.
func cachePath() string {
	if flagCache != "" {
		return flagCache
	}
	return cfg.Cache.Path
}

// cacheConfig maps the lock settings into the data layer's config.
func cacheConfig() jobcache.Config {
	return jobcache.Config{
		LockMaxAttempts:   cfg.Lock.MaxAttempts,
		LockRetryDelay:    cfg.Lock.RetryDelay,
		TakeOverStaleLock: cfg.Lock.TakeOverStale,
	}
}

// openCache binds a JobCache to the configured path.
func openCache() (*jobcache.JobCache, error) {
	cache, err := jobcache.Open(cachePath(), cacheConfig())
	if err != nil {
		return nil, classifyError("Cannot open cache", err)
	}
	return cache, nil
}

// codedError carries the process exit code alongside the message.
type codedError struct {
	code int
	msg  string
	err  error
}

func (e *codedError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *codedError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, msg: message, err: err}
}

// classifyError maps the package error taxonomy onto exit codes:
// validation problems are the user's, lock contention and transport
// failures are the environment's.
func classifyError(message string, err error) error {
	switch {
	case jobcache.IsValidation(err):
		return exitError(foundry.ExitInvalidArgument, message, err)
	case jobcache.IsLock(err):
		return exitError(foundry.ExitExternalServiceUnavailable, message, err)
	case transfer.IsTransport(err):
		return exitError(foundry.ExitExternalServiceUnavailable, message, err)
	default:
		return exitError(foundry.ExitFileWriteError, message, err)
	}
}

// Execute runs the CLI and exits the process with the error's code.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)

	err := rootCmd.Execute()
	observability.Sync()
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	var coded *codedError
	if errors.As(err, &coded) {
		os.Exit(coded.code)
	}
	os.Exit(foundry.ExitInvalidArgument)
}

// logLockSkip reports lock contention at debug level. Contention is an
// expected, recoverable condition, never logged as an error.
func logLockSkip(op string, err error) {
	observability.CLILogger.Debug("cache is locked, skipping",
		zap.String("op", op),
		zap.Error(err))
}
