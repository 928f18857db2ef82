package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/3leaps/jobkeep/pkg/jobcache"
	"github.com/3leaps/jobkeep/pkg/match"
	"github.com/3leaps/jobkeep/pkg/output"
)

var (
	listServers []string
	listPattern string
	listTerse   bool
	listJSON    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Long: `List jobs matching the search criteria. With no options, every job
on every server is listed. Columns that are empty across the whole
selection are omitted; a selection with no jobs prints nothing at all.

The --server flag accepts glob patterns, so one invocation can cover a
family of hosts.

Examples:
  jobkeep list
  jobkeep list -s 'cluster-*' -p running
  jobkeep list --terse
  jobkeep list --json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringArrayVarP(&listServers, "server", "s", nil, "server to list (repeatable, glob patterns allowed; default all)")
	listCmd.Flags().StringVarP(&listPattern, "pattern", "p", "", "regular expression selecting jobs by any field")
	listCmd.Flags().BoolVarP(&listTerse, "terse", "t", false, "print only hostname, index, job id and status")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	filter, err := match.NewHostFilter(listServers)
	if err != nil {
		return classifyError("Invalid server pattern", err)
	}
	pattern, err := compilePattern(listPattern)
	if err != nil {
		return classifyError("Invalid pattern", err)
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
	listing := cache.Listing(jobcache.ListingOptions{
		Host:    filter.Match,
		Pattern: pattern,
		Terse:   listTerse,
	})
	if err := cache.Dump(ctx); err != nil {
		return classifyError("Cannot save cache", err)
	}

	if listJSON {
		return output.EncodeJSON(os.Stdout, listing)
	}
	if listing.Empty() {
		return nil
	}
	if err := listing.Table().Render(os.Stdout); err != nil {
		return fmt.Errorf("render listing: %w", err)
	}
	return nil
}
