package cmd

import (
	"regexp"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/jobkeep/internal/observability"
	"github.com/3leaps/jobkeep/pkg/jobcache"
)

var (
	modifyServers []string
	modifyIndices []int
	modifyPattern string
)

var modifyCmd = &cobra.Command{
	Use:   "modify <job description>",
	Short: "Modify selected jobs",
	Long: `Modify the jobs selected by index and/or pattern on the named
server(s). Only the fields named in the job description change; empty
values are ignored, so a modify can never blank a field out. The identity
fields (job_id, program, path) are fixed at creation and cannot be
modified.

If neither an index nor a pattern is given, no job is selected.

Examples:
  jobkeep modify -i 0 comment: a test calculation
  jobkeep modify -s cluster1 -p 8841 status: analysed`,
	Args: cobra.MinimumNArgs(1),
	RunE: runModify,
}

func init() {
	rootCmd.AddCommand(modifyCmd)
	modifyCmd.Flags().StringArrayVarP(&modifyServers, "server", "s", nil, "server holding the jobs (repeatable; default localhost)")
	modifyCmd.Flags().IntSliceVarP(&modifyIndices, "index", "i", nil, "index of the job on the server (repeatable)")
	modifyCmd.Flags().StringVarP(&modifyPattern, "pattern", "p", "", "regular expression selecting jobs by any field")
}

func runModify(cmd *cobra.Command, args []string) error {
	desc, err := parseJobDesc(args)
	if err != nil {
		return classifyError("Invalid job description", err)
	}
	updates, err := desc.updates()
	if err != nil {
		return classifyError("Invalid job description", err)
	}
	pattern, err := compilePattern(modifyPattern)
	if err != nil {
		return classifyError("Invalid pattern", err)
	}

	servers := modifyServers
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
	var transitions []jobcache.Transition
	for _, hostname := range servers {
		server, err := cache.Server(hostname)
		if err != nil {
			return classifyError("Cannot modify jobs", err)
		}
		changed, err := server.Modify(updates, modifyIndices, pattern)
		if err != nil {
			return classifyError("Cannot modify jobs", err)
		}
		transitions = append(transitions, changed...)
	}
	if err := cache.Dump(ctx); err != nil {
		return classifyError("Cannot save cache", err)
	}

	if err := recordTransitions(ctx, transitions); err != nil {
		observability.CLILogger.Warn("failed to record history", zap.Error(err))
	}
	return nil
}

// compilePattern turns the --pattern flag into a regexp. Empty means no
// pattern filter.
func compilePattern(raw string) (*regexp.Regexp, error) {
	if raw == "" {
		return nil, nil
	}
	re, err := regexp.Compile(raw)
	if err != nil {
		return nil, &jobcache.ValidationError{Field: "pattern", Message: err.Error()}
	}
	return re, nil
}
