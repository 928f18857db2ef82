package probe

import (
	"context"
	"os/exec"
	"regexp"
	"strings"

	"github.com/3leaps/jobkeep/pkg/jobcache"
)

// ExecCommandFunc builds the command for a listing source. Swappable in
// tests so a prober can be driven by canned output.
type ExecCommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Prober implements jobcache.StatusProbe over a set of listing sources.
//
// Each source's output is captured at most once per pass, lazily: an
// auto-update pass over many jobs runs ps/qstat/llq once each, not once
// per job. A long-lived caller must Reset between passes so the captures
// are current.
type Prober struct {
	sources     []compiledSource
	execCommand ExecCommandFunc
	captures    map[string]*capture
}

type compiledSource struct {
	Source
	held     *regexp.Regexp
	queueing *regexp.Regexp
	running  *regexp.Regexp
}

// capture is one source's output, split into rows, or the fact that the
// source is unavailable on this machine.
type capture struct {
	available bool
	rows      [][]string
}

// New builds a Prober from validated source configuration.
func New(cfg Config) (*Prober, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sources := make([]compiledSource, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		cs := compiledSource{Source: s}
		var err error
		if cs.held, err = compileOptional(s.Held); err != nil {
			return nil, err
		}
		if cs.queueing, err = compileOptional(s.Queueing); err != nil {
			return nil, err
		}
		if cs.running, err = compileOptional(s.Running); err != nil {
			return nil, err
		}
		sources = append(sources, cs)
	}
	return &Prober{
		sources:     sources,
		execCommand: exec.CommandContext,
		captures:    make(map[string]*capture),
	}, nil
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// SetExecCommand overrides how source commands are executed.
func (p *Prober) SetExecCommand(fn ExecCommandFunc) {
	if fn != nil {
		p.execCommand = fn
	}
}

// Reset discards every captured listing, including the unavailable
// markers, so the next Lookup re-runs each source command. Within a pass
// the captures stay shared across jobs.
func (p *Prober) Reset() {
	p.captures = make(map[string]*capture)
}

// Lookup scans the sources in priority order for the job id and
// classifies it. Unavailable commands and non-zero exits skip the source
// silently (a queueing system simply not being installed here is normal).
// The first row whose job-id column matches ends the scan: the source's
// patterns are tried held, then queueing, then running; a patternless
// source reports running; a matched row whose status code fits no pattern
// reports present-but-unclassified. A job id found in no source's output
// is missing, which the caller treats as finished.
func (p *Prober) Lookup(ctx context.Context, jobID string) (jobcache.ProbeOutcome, error) {
	idMatch := jobIDMatcher(jobID)

	for i := range p.sources {
		src := &p.sources[i]
		snap, err := p.captureSource(ctx, src)
		if err != nil {
			return jobcache.ProbeMissing, err
		}
		if !snap.available {
			continue
		}
		for _, row := range snap.rows {
			if src.JobColumn >= len(row) || src.StatusColumn >= len(row) {
				// Short row (header, blank, wrapped line). Skip it, not
				// the whole source.
				continue
			}
			if !idMatch(row[src.JobColumn]) {
				continue
			}
			return classify(src, row[src.StatusColumn]), nil
		}
	}
	return jobcache.ProbeMissing, nil
}

func classify(src *compiledSource, statusCode string) jobcache.ProbeOutcome {
	if !src.HasPatterns() {
		// A bare process list cannot refine further than "it is there".
		return jobcache.ProbeRunning
	}
	switch {
	case src.held != nil && matchesAtStart(src.held, statusCode):
		return jobcache.ProbeHeld
	case src.queueing != nil && matchesAtStart(src.queueing, statusCode):
		return jobcache.ProbeQueueing
	case src.running != nil && matchesAtStart(src.running, statusCode):
		return jobcache.ProbeRunning
	default:
		return jobcache.ProbePresent
	}
}

// captureSource runs the source command once and caches the parsed rows. A
// command that cannot be found or exits non-zero marks the source
// unavailable until the next Reset.
func (p *Prober) captureSource(ctx context.Context, src *compiledSource) (*capture, error) {
	if cached, ok := p.captures[src.Name]; ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &capture{}
	p.captures[src.Name] = snap

	if _, err := exec.LookPath(src.Command[0]); err != nil {
		return snap, nil
	}
	cmd := p.execCommand(ctx, src.Command[0], src.Command[1:]...)
	out, err := cmd.Output()
	if err != nil {
		// Non-zero exit or spawn failure: untrusted output, skip source.
		return snap, nil
	}

	snap.available = true
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		snap.rows = append(snap.rows, fields)
	}
	return snap, nil
}

// jobIDMatcher compares a row's job-id column against the job id,
// interpreted as a regex anchored at the start of the column (queueing
// systems decorate ids with suffixes like ".hostname"). A job id that is
// not a valid regex falls back to a literal prefix match.
func jobIDMatcher(jobID string) func(string) bool {
	re, err := regexp.Compile(jobID)
	if err != nil {
		return func(field string) bool {
			return strings.HasPrefix(field, jobID)
		}
	}
	return func(field string) bool {
		return matchesAtStart(re, field)
	}
}

// matchesAtStart reports whether the pattern matches at position zero of
// the string (re.match semantics rather than a search).
func matchesAtStart(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}
