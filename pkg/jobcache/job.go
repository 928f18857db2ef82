package jobcache

import (
	"regexp"
	"time"
)

// JobSpec is the full description of a job: the creation fields plus the
// optional descriptive ones. It doubles as the display snapshot returned
// by Job.Snapshot.
type JobSpec struct {
	// JobID identifies the job within one host's namespace (a pid, or an
	// id handed out by a queueing system). Required.
	JobID string `json:"job_id"`

	// Program is the name of the program being executed. Required.
	Program string `json:"program"`

	// Path is the directory the job runs in. Required.
	Path string `json:"path"`

	InputFname  string `json:"input_fname,omitempty"`
	OutputFname string `json:"output_fname,omitempty"`
	Status      Status `json:"status"`
	Submit      string `json:"submit,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// FieldUpdates carries new values for the mutable job fields. Empty values
// leave the corresponding field alone, so an update can never blank a field
// out. The identity fields (job id, program, path) are fixed at creation
// and deliberately have no representation here.
type FieldUpdates struct {
	InputFname  string
	OutputFname string
	Status      Status
	Submit      string
	Comment     string
}

// isZero reports whether the update set would change nothing.
func (u FieldUpdates) isZero() bool {
	return u == FieldUpdates{}
}

// Job is one tracked calculation. Jobs are created through JobServer.Add
// and mutated only through their methods, which keep the hidden
// modification timestamp current for merge conflict resolution.
type Job struct {
	jobID       string
	program     string
	path        string
	inputFname  string
	outputFname string
	status      Status
	submit      string
	comment     string

	// modifiedAt orders competing copies of the same job id during a
	// merge. UTC, whole seconds. Never displayed.
	modifiedAt time.Time
}

func newJob(spec JobSpec) (*Job, error) {
	if spec.JobID == "" {
		return nil, &ValidationError{Field: "job_id", Message: "required"}
	}
	if spec.Program == "" {
		return nil, &ValidationError{Field: "program", Message: "required"}
	}
	if spec.Path == "" {
		return nil, &ValidationError{Field: "path", Message: "required"}
	}
	status := spec.Status
	if status == "" {
		status = StatusUnknown
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	return &Job{
		jobID:       spec.JobID,
		program:     spec.Program,
		path:        spec.Path,
		inputFname:  spec.InputFname,
		outputFname: spec.OutputFname,
		status:      status,
		submit:      spec.Submit,
		comment:     spec.Comment,
		modifiedAt:  nowUTC(),
	}, nil
}

// JobID returns the job's identifier.
func (j *Job) JobID() string { return j.jobID }

// Program returns the program name.
func (j *Job) Program() string { return j.program }

// Path returns the job directory.
func (j *Job) Path() string { return j.path }

// Status returns the current status.
func (j *Job) Status() Status { return j.status }

// ModifiedAt returns the last modification time. It is only meaningful
// for merge conflict resolution.
func (j *Job) ModifiedAt() time.Time { return j.modifiedAt }

// Snapshot returns all display fields of the job. The hidden modification
// timestamp is not part of the snapshot.
func (j *Job) Snapshot() JobSpec {
	return JobSpec{
		JobID:       j.jobID,
		Program:     j.program,
		Path:        j.path,
		InputFname:  j.inputFname,
		OutputFname: j.outputFname,
		Status:      j.status,
		Submit:      j.submit,
		Comment:     j.comment,
	}
}

// Modify overwrites every field of the job for which the update set
// carries a non-empty value. The modification timestamp is bumped
// unconditionally, even when no field actually changed: the job was the
// subject of a modify request.
func (j *Job) Modify(u FieldUpdates) {
	if u.InputFname != "" {
		j.inputFname = u.InputFname
	}
	if u.OutputFname != "" {
		j.outputFname = u.OutputFname
	}
	if u.Status != "" {
		j.status = u.Status
	}
	if u.Submit != "" {
		j.submit = u.Submit
	}
	if u.Comment != "" {
		j.comment = u.Comment
	}
	j.modifiedAt = nowUTC()
}

// Matches reports whether the pattern matches any of the job's searchable
// fields: job id, program, path, input and output file names, status,
// submit script and comment. A nil pattern matches every job. Unset
// optional fields are searched as empty strings, so a pattern like ^$ can
// select jobs with any field missing.
func (j *Job) Matches(pattern *regexp.Regexp) bool {
	if pattern == nil {
		return true
	}
	for _, field := range []string{
		j.jobID,
		j.program,
		j.path,
		j.inputFname,
		j.outputFname,
		string(j.status),
		j.submit,
		j.comment,
	} {
		if pattern.MatchString(field) {
			return true
		}
	}
	return false
}

// updates converts the job's mutable fields into a FieldUpdates set, used
// to transfer a newer copy's fields during a merge.
func (j *Job) updates() FieldUpdates {
	return FieldUpdates{
		InputFname:  j.inputFname,
		OutputFname: j.outputFname,
		Status:      j.status,
		Submit:      j.submit,
		Comment:     j.comment,
	}
}

// clone returns an independent copy of the job, timestamp included.
func (j *Job) clone() *Job {
	c := *j
	return &c
}

// nowUTC is the clock for modification timestamps. Second resolution: the
// persisted format does not keep anything finer, and merge ordering must
// survive a round-trip.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
