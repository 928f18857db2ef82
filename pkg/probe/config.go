// Package probe classifies job ids by parsing the tabular output of
// external process/queue listing commands (ps, qstat, llq, ...).
//
// Each source names a command, the columns holding the job id and status
// fields, and optional regex patterns mapping status codes to held,
// queueing or running. A source with no patterns is a bare process list:
// presence in its output implies the job is executing.
package probe

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source configures one listing source. Sources are tried in the order
// they are configured; the first source whose output contains the job id
// ends the scan.
type Source struct {
	// Name identifies the source in logs and diagnostics.
	Name string `json:"name" yaml:"name"`

	// Command is the argv to run. The output must be line-oriented
	// whitespace-separated columns on stdout, exit code 0.
	Command []string `json:"command" yaml:"command"`

	// JobColumn and StatusColumn are zero-based column indices into each
	// output row.
	JobColumn    int `json:"job_column" yaml:"job_column"`
	StatusColumn int `json:"status_column" yaml:"status_column"`

	// Held, Queueing and Running are regex patterns matched against the
	// status column, in that precedence. All empty means the source
	// carries no status information (bare process list).
	Held     string `json:"held,omitempty" yaml:"held,omitempty"`
	Queueing string `json:"queueing,omitempty" yaml:"queueing,omitempty"`
	Running  string `json:"running,omitempty" yaml:"running,omitempty"`
}

// HasPatterns reports whether the source maps status codes at all.
func (s Source) HasPatterns() bool {
	return s.Held != "" || s.Queueing != "" || s.Running != ""
}

// Config is an ordered list of listing sources.
type Config struct {
	Sources []Source `json:"sources" yaml:"sources"`
}

// Validate checks every source: a name, a command and in-range column
// indices are required, and any status patterns must compile.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := map[string]struct{}{}
	for i := range c.Sources {
		s := c.Sources[i]
		s.Name = strings.TrimSpace(s.Name)
		c.Sources[i] = s

		if s.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("sources[%d].name %q is duplicated", i, s.Name)
		}
		seen[s.Name] = struct{}{}

		if len(s.Command) == 0 || strings.TrimSpace(s.Command[0]) == "" {
			return fmt.Errorf("sources[%d].command is required", i)
		}
		if s.JobColumn < 0 {
			return fmt.Errorf("sources[%d].job_column must be >= 0", i)
		}
		if s.StatusColumn < 0 {
			return fmt.Errorf("sources[%d].status_column must be >= 0", i)
		}
		for _, p := range []struct{ field, pattern string }{
			{"held", s.Held},
			{"queueing", s.Queueing},
			{"running", s.Running},
		} {
			if p.pattern == "" {
				continue
			}
			if _, err := regexp.Compile(p.pattern); err != nil {
				return fmt.Errorf("sources[%d].%s invalid: %w", i, p.field, err)
			}
		}
	}
	return nil
}

// DefaultSources returns the built-in listing sources: the local process
// table, PBS qstat and LoadLeveler llq, in that priority order.
func DefaultSources() Config {
	return Config{Sources: []Source{
		{
			Name:         "ps",
			Command:      []string{"ps", "aux"},
			JobColumn:    1,
			StatusColumn: 7,
			// No status patterns: presence in ps output means running.
		},
		{
			Name:         "qstat",
			Command:      []string{"qstat"},
			JobColumn:    0,
			StatusColumn: 4,
			Held:         "H",
			Queueing:     "Q",
			Running:      "R",
		},
		{
			Name:         "llq",
			Command:      []string{"llq"},
			JobColumn:    0,
			StatusColumn: 3,
			Held:         "H|NQ|S",
			Queueing:     "I",
			Running:      "R",
		},
	}}
}

// LoadSources reads a YAML sources manifest, replacing the defaults.
// Unknown fields are rejected so a typoed key fails loudly instead of
// silently configuring nothing.
func LoadSources(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("sources file not found: %s", path)
		}
		return Config{}, fmt.Errorf("read sources file: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid sources file %s: %w", path, err)
	}
	return cfg, nil
}
