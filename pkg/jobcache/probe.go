package jobcache

import "context"

// ProbeOutcome is the classification of a job id by a status probe.
type ProbeOutcome int

const (
	// ProbeMissing means the job id appeared in no listing. The job is
	// assumed to have finished.
	ProbeMissing ProbeOutcome = iota

	// ProbeHeld, ProbeQueueing and ProbeRunning are definitive
	// classifications from a source with status-code patterns.
	ProbeHeld
	ProbeQueueing
	ProbeRunning

	// ProbePresent means the job id appeared in a listing but the status
	// code matched none of the source's patterns. The job keeps its
	// current status.
	ProbePresent
)

// StatusProbe classifies a job id by cross-referencing external
// process/queue listings. Implementations are expected to be best-effort:
// a listing source that is not installed on this machine is skipped, not
// an error.
type StatusProbe interface {
	Lookup(ctx context.Context, jobID string) (ProbeOutcome, error)
}

// Transition records one status change made by an auto-update pass, for
// logging or history.
type Transition struct {
	Hostname string `json:"hostname"`
	JobID    string `json:"job_id"`
	From     Status `json:"from"`
	To       Status `json:"to"`
}

// probeStatus reclassifies the job from a probe outcome. Terminal jobs are
// never re-probed: finished and analysed stick until an explicit modify.
// The modification timestamp is bumped on every classification, including
// ProbePresent, since the job was the subject of an update pass that
// consulted live listings.
func (j *Job) probeStatus(ctx context.Context, probe StatusProbe) (changed bool, err error) {
	if j.status.Terminal() {
		return false, nil
	}
	outcome, err := probe.Lookup(ctx, j.jobID)
	if err != nil {
		return false, err
	}
	prev := j.status
	switch outcome {
	case ProbeHeld:
		j.status = StatusHeld
	case ProbeQueueing:
		j.status = StatusQueueing
	case ProbeRunning:
		j.status = StatusRunning
	case ProbeMissing:
		j.status = StatusFinished
	case ProbePresent:
		// Found in a listing but unclassifiable. Keep the status.
	}
	j.modifiedAt = nowUTC()
	return j.status != prev, nil
}
