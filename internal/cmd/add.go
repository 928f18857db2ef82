package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/jobkeep/internal/observability"
	"github.com/3leaps/jobkeep/pkg/jobcache"
)

var addServers []string

var addCmd = &cobra.Command{
	Use:   "add <job description>",
	Short: "Add a job to a server",
	Long: `Add a job to the named server(s).

The job description is a list of key: value pairs; values may contain
spaces. job_id, program and path are required, everything else is
optional.

Examples:
  jobkeep add job_id: $$ program: sim path: $PWD status: running
  jobkeep add -s cluster1 job_id: 8841.pbs program: dmc path: /scratch/run2 submit: run2.job`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringArrayVarP(&addServers, "server", "s", nil, "server the job runs on (repeatable; default localhost)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	desc, err := parseJobDesc(args)
	if err != nil {
		return classifyError("Invalid job description", err)
	}
	spec, err := desc.spec()
	if err != nil {
		return classifyError("Invalid job description", err)
	}

	servers := addServers
	if len(servers) == 0 {
		servers = []string{jobcache.Localhost}
	}

	ctx := cmd.Context()
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	if err := cache.Load(ctx); err != nil {
		return classifyError("Cannot load cache", err)
	}
	for _, hostname := range servers {
		if !cache.HasServer(hostname) {
			if err := cache.AddServer(hostname); err != nil {
				return classifyError("Cannot add server", err)
			}
		}
		server, err := cache.Server(hostname)
		if err != nil {
			return classifyError("Cannot add job", err)
		}
		if err := server.Add(spec); err != nil {
			return classifyError("Cannot add job", err)
		}
		observability.CLILogger.Debug("job added",
			zap.String("server", hostname),
			zap.String("job_id", spec.JobID))
	}
	if err := cache.Dump(ctx); err != nil {
		return classifyError("Cannot save cache", err)
	}
	return nil
}
