package cmd

import (
	"github.com/spf13/cobra"

	"github.com/3leaps/jobkeep/pkg/jobcache"
)

var (
	deleteServers []string
	deleteIndices []int
	deletePattern string
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete selected jobs",
	Long: `Delete the jobs selected by index and/or pattern on the named
server(s). Both criteria may be given; the deleted set is their union.

If neither an index nor a pattern is given, no job is selected.

Examples:
  jobkeep delete -i 0
  jobkeep delete -s cluster1 -p finished`,
	Args: cobra.NoArgs,
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().StringArrayVarP(&deleteServers, "server", "s", nil, "server holding the jobs (repeatable; default localhost)")
	deleteCmd.Flags().IntSliceVarP(&deleteIndices, "index", "i", nil, "index of the job on the server (repeatable)")
	deleteCmd.Flags().StringVarP(&deletePattern, "pattern", "p", "", "regular expression selecting jobs by any field")
}

func runDelete(cmd *cobra.Command, args []string) error {
	pattern, err := compilePattern(deletePattern)
	if err != nil {
		return classifyError("Invalid pattern", err)
	}

	servers := deleteServers
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
		server, err := cache.Server(hostname)
		if err != nil {
			return classifyError("Cannot delete jobs", err)
		}
		if err := server.Delete(deleteIndices, pattern); err != nil {
			return classifyError("Cannot delete jobs", err)
		}
	}
	if err := cache.Dump(ctx); err != nil {
		return classifyError("Cannot save cache", err)
	}
	return nil
}
