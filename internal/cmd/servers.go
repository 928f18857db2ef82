package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/3leaps/jobkeep/pkg/output"
)

var flagServersJSON bool

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Manage the servers known to the cache",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known servers and their job counts",
	Args:  cobra.NoArgs,
	RunE:  runServersList,
}

var serversAddCmd = &cobra.Command{
	Use:   "add <hostname>",
	Short: "Register a server in the cache",
	Long: `Register a server in the cache so jobs can be filed under it.

"localhost" always exists and refers to the machine running jobkeep;
other names are bookkeeping labels for remote machines.`,
	Args: cobra.ExactArgs(1),
	RunE: runServersAdd,
}

func init() {
	serversListCmd.Flags().BoolVar(&flagServersJSON, "json", false, "emit the server list as JSON")
	serversCmd.AddCommand(serversListCmd)
	serversCmd.AddCommand(serversAddCmd)
	rootCmd.AddCommand(serversCmd)
}

type serverSummary struct {
	Hostname string `json:"hostname"`
	Jobs     int    `json:"jobs"`
}

func runServersList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cache, err := openCache()
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	if err := cache.Load(ctx); err != nil {
		return classifyError("Cannot load cache", err)
	}

	var summaries []serverSummary
	for _, hostname := range cache.Hostnames() {
		server, err := cache.Server(hostname)
		if err != nil {
			return classifyError("Cannot read server", err)
		}
		summaries = append(summaries, serverSummary{Hostname: hostname, Jobs: server.Len()})
	}

	if err := cache.Dump(ctx); err != nil {
		return classifyError("Cannot save cache", err)
	}

	if flagServersJSON {
		return output.EncodeJSON(os.Stdout, summaries)
	}
	table := output.NewTable([]string{"hostname", "jobs"})
	for _, s := range summaries {
		table.AddRow([]string{s.Hostname, fmt.Sprint(s.Jobs)})
	}
	return table.Render(os.Stdout)
}

func runServersAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	hostname := args[0]

	cache, err := openCache()
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	if err := cache.Load(ctx); err != nil {
		return classifyError("Cannot load cache", err)
	}
	if err := cache.AddServer(hostname); err != nil {
		return classifyError("Cannot add server", err)
	}
	if err := cache.Dump(ctx); err != nil {
		return classifyError("Cannot save cache", err)
	}
	return nil
}
