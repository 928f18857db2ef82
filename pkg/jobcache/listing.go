package jobcache

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/3leaps/jobkeep/pkg/output"
)

// ListingColumns is the fixed column order for job listings.
var ListingColumns = []string{
	"hostname", "index", "job_id", "program", "path",
	"input_fname", "output_fname", "submit", "status", "comment",
}

// terseColumns are the columns kept by a terse listing.
var terseColumns = map[string]bool{
	"hostname": true, "index": true, "job_id": true, "status": true,
}

// ListingOptions selects and shapes a job listing.
type ListingOptions struct {
	// Host filters servers by hostname. Nil selects every server.
	Host func(hostname string) bool

	// Pattern filters jobs within each selected server. Nil selects
	// every job.
	Pattern *regexp.Regexp

	// Terse restricts the columns to hostname, index, job_id and status.
	Terse bool
}

// ListingRow is one job in a listing. Index is the job's current position
// within its server at render time, not a stable identifier.
type ListingRow struct {
	Hostname    string `json:"hostname"`
	Index       int    `json:"index"`
	JobID       string `json:"job_id"`
	Program     string `json:"program,omitempty"`
	Path        string `json:"path,omitempty"`
	InputFname  string `json:"input_fname,omitempty"`
	OutputFname string `json:"output_fname,omitempty"`
	Submit      string `json:"submit,omitempty"`
	Status      Status `json:"status,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// Listing is a selection of jobs shaped for display: the columns that
// survived selection (fixed order, entirely-empty ones dropped) and the
// rows, grouped by host in hostname order.
type Listing struct {
	Columns []string     `json:"columns"`
	Rows    []ListingRow `json:"rows"`
}

// Empty reports whether the listing selected no jobs at all.
func (l *Listing) Empty() bool { return len(l.Rows) == 0 }

// Listing selects jobs per host and computes the surviving columns.
// Hosts with zero matching jobs are dropped. Hostname and index are always
// kept; any other column that is empty across the whole selection is
// omitted. Terse listings keep only hostname, index, job_id and status.
func (c *JobCache) Listing(opts ListingOptions) *Listing {
	listing := &Listing{}

	for _, hostname := range sortedHostnames(c.servers) {
		if opts.Host != nil && !opts.Host(hostname) {
			continue
		}
		server := c.servers[hostname]
		for idx, job := range server.jobs {
			if !job.Matches(opts.Pattern) {
				continue
			}
			listing.Rows = append(listing.Rows, ListingRow{
				Hostname:    hostname,
				Index:       idx,
				JobID:       job.jobID,
				Program:     job.program,
				Path:        job.path,
				InputFname:  job.inputFname,
				OutputFname: job.outputFname,
				Submit:      job.submit,
				Status:      job.status,
				Comment:     job.comment,
			})
		}
	}

	for _, col := range ListingColumns {
		if opts.Terse && !terseColumns[col] {
			continue
		}
		if col == "hostname" || col == "index" || listing.columnUsed(col) {
			listing.Columns = append(listing.Columns, col)
		}
	}
	return listing
}

func (l *Listing) columnUsed(col string) bool {
	for _, row := range l.Rows {
		if row.cell(col) != "" {
			return true
		}
	}
	return false
}

func (r *ListingRow) cell(col string) string {
	switch col {
	case "hostname":
		return r.Hostname
	case "index":
		return strconv.Itoa(r.Index)
	case "job_id":
		return r.JobID
	case "program":
		return r.Program
	case "path":
		return r.Path
	case "input_fname":
		return r.InputFname
	case "output_fname":
		return r.OutputFname
	case "submit":
		return r.Submit
	case "status":
		return string(r.Status)
	case "comment":
		return r.Comment
	default:
		return ""
	}
}

// Table converts the listing into a renderable table.
func (l *Listing) Table() *output.Table {
	table := output.NewTable(l.Columns)
	for i := range l.Rows {
		cells := make([]string, len(l.Columns))
		for j, col := range l.Columns {
			cells[j] = l.Rows[i].cell(col)
		}
		table.AddRow(cells)
	}
	return table
}

// FormatListing renders the selection as ready-to-print text. An empty
// selection renders as nothing at all, not even a header.
func (c *JobCache) FormatListing(opts ListingOptions) string {
	listing := c.Listing(opts)
	if listing.Empty() {
		return ""
	}
	var sb strings.Builder
	_ = listing.Table().Render(&sb)
	return sb.String()
}
