package jobcache

import (
	"context"
	"fmt"
	"regexp"
)

// Localhost is the reserved hostname for the machine running the current
// process. It is the only host whose jobs are eligible for automatic
// status probing.
const Localhost = "localhost"

// JobServer is the ordered collection of jobs associated with one named
// host. Order is significant: callers address jobs by positional index, so
// insertion order is preserved and deletions shift later indices down.
type JobServer struct {
	hostname string
	jobs     []*Job
}

// NewServer returns an empty JobServer for the given hostname.
func NewServer(hostname string) *JobServer {
	return &JobServer{hostname: hostname}
}

// Hostname returns the server's hostname.
func (s *JobServer) Hostname() string { return s.hostname }

// Len returns the number of jobs on the server.
func (s *JobServer) Len() int { return len(s.jobs) }

// Jobs returns the jobs in stored order. The slice is a copy; the jobs
// themselves are not.
func (s *JobServer) Jobs() []*Job {
	out := make([]*Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Add constructs a new job from the spec and appends it.
func (s *JobServer) Add(spec JobSpec) error {
	job, err := newJob(spec)
	if err != nil {
		return err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Select returns, in stored order, every job matching the pattern. A nil
// pattern selects all jobs.
func (s *JobServer) Select(pattern *regexp.Regexp) []*Job {
	var selected []*Job
	for _, job := range s.jobs {
		if job.Matches(pattern) {
			selected = append(selected, job)
		}
	}
	return selected
}

// selectSet returns the union of the jobs addressed by index and the jobs
// matching the pattern, as a membership set over current storage order.
// Each job appears once even if selected by both criteria.
func (s *JobServer) selectSet(indices []int, pattern *regexp.Regexp) (map[*Job]struct{}, error) {
	selected := make(map[*Job]struct{})
	for _, idx := range indices {
		if idx < 0 || idx >= len(s.jobs) {
			return nil, &ValidationError{
				Field:   "index",
				Message: fmt.Sprintf("index %d out of range on host %s (have %d jobs)", idx, s.hostname, len(s.jobs)),
			}
		}
		selected[s.jobs[idx]] = struct{}{}
	}
	if pattern != nil {
		for _, job := range s.Select(pattern) {
			selected[job] = struct{}{}
		}
	}
	return selected, nil
}

// Delete removes the jobs addressed by positional index and the jobs
// matching the pattern. Indices refer to storage order before any removal;
// the survivors are computed by set membership, so there is no index-shift
// bookkeeping. An out-of-range index is a ValidationError and nothing is
// removed.
func (s *JobServer) Delete(indices []int, pattern *regexp.Regexp) error {
	doomed, err := s.selectSet(indices, pattern)
	if err != nil {
		return err
	}
	if len(doomed) == 0 {
		return nil
	}
	survivors := s.jobs[:0]
	for _, job := range s.jobs {
		if _, gone := doomed[job]; !gone {
			survivors = append(survivors, job)
		}
	}
	// Clear trailing slots so deleted jobs are not kept alive.
	for i := len(survivors); i < len(s.jobs); i++ {
		s.jobs[i] = nil
	}
	s.jobs = survivors
	return nil
}

// Modify applies the field updates to every job addressed by index and
// every job matching the pattern, once per job even if selected by both.
// It returns a Transition for each job whose status actually changed. An
// update set that names no fields is a ValidationError: it would only
// bump timestamps, never change anything.
func (s *JobServer) Modify(updates FieldUpdates, indices []int, pattern *regexp.Regexp) ([]Transition, error) {
	if updates.isZero() {
		return nil, &ValidationError{Field: "updates", Message: "no fields to modify"}
	}
	selected, err := s.selectSet(indices, pattern)
	if err != nil {
		return nil, err
	}
	// Apply in storage order for deterministic timestamps.
	var transitions []Transition
	for _, job := range s.jobs {
		if _, ok := selected[job]; !ok {
			continue
		}
		from := job.Status()
		job.Modify(updates)
		if job.Status() != from {
			transitions = append(transitions, Transition{
				Hostname: s.hostname,
				JobID:    job.JobID(),
				From:     from,
				To:       job.Status(),
			})
		}
	}
	return transitions, nil
}

// AutoUpdate runs the status probe over every live job on the server and
// returns the status transitions it made. Only the localhost server is
// updated; there is no remote execution capability, so probing any other
// host would classify its jobs against the wrong process table. For a
// non-localhost server this is a no-op.
func (s *JobServer) AutoUpdate(ctx context.Context, probe StatusProbe) ([]Transition, error) {
	if s.hostname != Localhost {
		return nil, nil
	}
	var transitions []Transition
	for _, job := range s.jobs {
		if !job.Status().Live() {
			continue
		}
		from := job.Status()
		changed, err := job.probeStatus(ctx, probe)
		if err != nil {
			return transitions, err
		}
		if changed {
			transitions = append(transitions, Transition{
				Hostname: s.hostname,
				JobID:    job.JobID(),
				From:     from,
				To:       job.Status(),
			})
		}
	}
	return transitions, nil
}

// Merge folds another server's jobs into this one, last-writer-wins keyed
// by job id. A job id present in both keeps whichever copy was modified
// later; on equal timestamps the pre-existing copy wins (the comparison is
// strictly-after, a deliberate tie-break at second resolution). Job ids
// only in other are deep-copied across, so the merged server never aliases
// jobs with the source. Hostnames are not consulted; callers merge
// same-named servers only.
func (s *JobServer) Merge(other *JobServer) {
	for _, theirs := range other.jobs {
		ours := s.findJob(theirs.JobID())
		if ours == nil {
			s.jobs = append(s.jobs, theirs.clone())
			continue
		}
		if theirs.ModifiedAt().After(ours.ModifiedAt()) {
			ours.Modify(theirs.updates())
		}
	}
}

func (s *JobServer) findJob(jobID string) *Job {
	for _, job := range s.jobs {
		if job.JobID() == jobID {
			return job
		}
	}
	return nil
}

// clone returns an independent deep copy of the server.
func (s *JobServer) clone() *JobServer {
	c := NewServer(s.hostname)
	c.jobs = make([]*Job, len(s.jobs))
	for i, job := range s.jobs {
		c.jobs[i] = job.clone()
	}
	return c
}
