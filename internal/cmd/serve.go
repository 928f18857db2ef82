package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/jobkeep/internal/observability"
	"github.com/3leaps/jobkeep/internal/server"
	"github.com/3leaps/jobkeep/internal/server/handlers"
	"github.com/3leaps/jobkeep/pkg/jobcache"
)

var (
	flagServeHost string
	flagServePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the job cache as a read-only HTTP API",
	Long: `Serve the job cache over HTTP for dashboards and scripts.

Endpoints:
  GET /health
  GET /version
  GET /api/v1/jobs?host=<glob>&pattern=<regex>&terse=1
  GET /api/v1/servers

Each request runs a complete load and save of the cache under its lock,
so responses are consistent snapshots and other jobkeep invocations
interleave freely.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVar(&flagServePort, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := server.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Version:         versionInfo.Version,
		Commit:          versionInfo.Commit,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
	}
	if flagServeHost != "" {
		opts.Host = flagServeHost
	}
	if flagServePort != 0 {
		opts.Port = flagServePort
	}

	srv := server.New(opts, &cacheSource{})

	observability.CLILogger.Info("serving job cache",
		zap.String("addr", srv.Addr()),
		zap.String("cache", cachePath()))

	if err := srv.Run(ctx); err != nil {
		return classifyError("HTTP server failed", err)
	}
	return nil
}

// cacheSource answers API requests by running one load→dump cycle per
// request. The cache lock serializes it against every other jobkeep
// invocation on the machine.
type cacheSource struct{}

func (cs *cacheSource) Listing(ctx context.Context, opts jobcache.ListingOptions) (*jobcache.Listing, error) {
	cache, err := jobcache.Open(cachePath(), cacheConfig())
	if err != nil {
		return nil, err
	}
	defer func() { _ = cache.Close() }()

	if err := cache.Load(ctx); err != nil {
		return nil, err
	}
	listing := cache.Listing(opts)
	if err := cache.Dump(ctx); err != nil {
		return nil, err
	}
	return listing, nil
}

func (cs *cacheSource) Servers(ctx context.Context) ([]handlers.ServerSummary, error) {
	cache, err := jobcache.Open(cachePath(), cacheConfig())
	if err != nil {
		return nil, err
	}
	defer func() { _ = cache.Close() }()

	if err := cache.Load(ctx); err != nil {
		return nil, err
	}
	var summaries []handlers.ServerSummary
	for _, hostname := range cache.Hostnames() {
		server, err := cache.Server(hostname)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, handlers.ServerSummary{Hostname: hostname, Jobs: server.Len()})
	}
	if err := cache.Dump(ctx); err != nil {
		return nil, err
	}
	return summaries, nil
}
