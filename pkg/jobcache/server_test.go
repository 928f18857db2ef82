package jobcache

import (
	"context"
	"regexp"
	"testing"
	"time"
)

func addJob(t *testing.T, s *JobServer, spec JobSpec) {
	t.Helper()
	if err := s.Add(spec); err != nil {
		t.Fatalf("Add(%q) error: %v", spec.JobID, err)
	}
}

func jobIDs(s *JobServer) []string {
	var ids []string
	for _, job := range s.Jobs() {
		ids = append(ids, job.JobID())
	}
	return ids
}

func TestServer_AddPreservesOrder(t *testing.T) {
	s := NewServer(Localhost)
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a"})
	addJob(t, s, JobSpec{JobID: "222", Program: "gauss", Path: "/b"})
	addJob(t, s, JobSpec{JobID: "333", Program: "vasp", Path: "/c"})

	got := jobIDs(s)
	want := []string{"111", "222", "333"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("jobs out of order: got %v, want %v", got, want)
		}
	}
}

func TestServer_DeleteByIndexAndPattern(t *testing.T) {
	s := NewServer(Localhost)
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a"})
	addJob(t, s, JobSpec{JobID: "222", Program: "gauss", Path: "/b"})
	addJob(t, s, JobSpec{JobID: "333", Program: "vasp", Path: "/c"})
	addJob(t, s, JobSpec{JobID: "444", Program: "gauss", Path: "/d"})

	// Index 0 and pattern "gauss" address {111, 222, 444}; 111 is also
	// matched by nothing else, 222 only by pattern.
	if err := s.Delete([]int{0}, regexp.MustCompile("gauss")); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	got := jobIDs(s)
	if len(got) != 1 || got[0] != "333" {
		t.Fatalf("survivors = %v, want [333]", got)
	}
}

func TestServer_DeleteSelectedByBothCriteriaOnce(t *testing.T) {
	s := NewServer(Localhost)
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a"})
	addJob(t, s, JobSpec{JobID: "222", Program: "gauss", Path: "/b"})

	// Index 1 and the pattern address the same job.
	if err := s.Delete([]int{1}, regexp.MustCompile("gauss")); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestServer_DeleteOutOfRangeIndexRemovesNothing(t *testing.T) {
	s := NewServer(Localhost)
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a"})

	err := s.Delete([]int{5}, regexp.MustCompile("vasp"))
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("job removed despite failed delete: len = %d", s.Len())
	}
}

func TestServer_ModifyAppliesOncePerJob(t *testing.T) {
	s := NewServer(Localhost)
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a"})
	addJob(t, s, JobSpec{JobID: "222", Program: "gauss", Path: "/b"})

	// Index 0 and the pattern both address job 111.
	transitions, err := s.Modify(FieldUpdates{Comment: "converged"}, []int{0}, regexp.MustCompile("111"))
	if err != nil {
		t.Fatalf("Modify() error: %v", err)
	}
	if len(transitions) != 0 {
		t.Fatalf("comment-only modify reported transitions: %v", transitions)
	}

	jobs := s.Jobs()
	if got := jobs[0].Snapshot().Comment; got != "converged" {
		t.Fatalf("comment = %q, want %q", got, "converged")
	}
	if got := jobs[1].Snapshot().Comment; got != "" {
		t.Fatalf("unselected job modified: comment = %q", got)
	}
}

func TestServer_ModifyReportsStatusTransitions(t *testing.T) {
	s := NewServer(Localhost)
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Status: StatusRunning})
	addJob(t, s, JobSpec{JobID: "222", Program: "vasp", Path: "/b", Status: StatusAnalysed})

	transitions, err := s.Modify(FieldUpdates{Status: StatusAnalysed}, nil, regexp.MustCompile("vasp"))
	if err != nil {
		t.Fatalf("Modify() error: %v", err)
	}
	// 222 was already analysed, so only 111 transitions.
	if len(transitions) != 1 {
		t.Fatalf("transitions = %v, want one", transitions)
	}
	if transitions[0].JobID != "111" || transitions[0].To != StatusAnalysed {
		t.Fatalf("transition = %+v", transitions[0])
	}
}

func TestServer_ModifyRejectsEmptyUpdates(t *testing.T) {
	s := NewServer(Localhost)
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a"})
	before := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	s.jobs[0].modifiedAt = before

	_, err := s.Modify(FieldUpdates{}, []int{0}, nil)
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !s.jobs[0].ModifiedAt().Equal(before) {
		t.Fatal("empty modify bumped the modification timestamp")
	}
}

func TestServer_MergeLastWriterWins(t *testing.T) {
	ours := NewServer("cluster1")
	addJob(t, ours, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Comment: "old"})

	theirs := NewServer("cluster1")
	addJob(t, theirs, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Comment: "new"})
	addJob(t, theirs, JobSpec{JobID: "222", Program: "gauss", Path: "/b"})

	ours.jobs[0].modifiedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	theirs.jobs[0].modifiedAt = time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)

	ours.Merge(theirs)

	if got := ours.jobs[0].Snapshot().Comment; got != "new" {
		t.Fatalf("later copy lost: comment = %q", got)
	}
	if ours.Len() != 2 {
		t.Fatalf("len = %d, want 2", ours.Len())
	}
	if ours.findJob("222") == nil {
		t.Fatal("job only in other not copied across")
	}
}

func TestServer_MergeTieKeepsPreExistingCopy(t *testing.T) {
	ts := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	ours := NewServer("cluster1")
	addJob(t, ours, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Comment: "ours"})
	theirs := NewServer("cluster1")
	addJob(t, theirs, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Comment: "theirs"})
	ours.jobs[0].modifiedAt = ts
	theirs.jobs[0].modifiedAt = ts

	ours.Merge(theirs)

	if got := ours.jobs[0].Snapshot().Comment; got != "ours" {
		t.Fatalf("tie must keep the pre-existing copy, got comment %q", got)
	}
}

func TestServer_MergeStaleCopyLoses(t *testing.T) {
	ours := NewServer("cluster1")
	addJob(t, ours, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Status: StatusFinished})
	theirs := NewServer("cluster1")
	addJob(t, theirs, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Status: StatusRunning})
	ours.jobs[0].modifiedAt = time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)
	theirs.jobs[0].modifiedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	ours.Merge(theirs)

	if got := ours.jobs[0].Status(); got != StatusFinished {
		t.Fatalf("older copy overwrote newer: status = %q", got)
	}
}

func TestServer_MergeNeverAliasesSource(t *testing.T) {
	ours := NewServer("cluster1")
	theirs := NewServer("cluster1")
	addJob(t, theirs, JobSpec{JobID: "111", Program: "vasp", Path: "/a"})

	ours.Merge(theirs)
	ours.jobs[0].Modify(FieldUpdates{Comment: "changed after merge"})

	if got := theirs.jobs[0].Snapshot().Comment; got != "" {
		t.Fatalf("merge aliased source job: comment = %q", got)
	}
}

func TestServer_MergeSelfCloneIsNoOp(t *testing.T) {
	s := NewServer("cluster1")
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Comment: "converged"})
	addJob(t, s, JobSpec{JobID: "222", Program: "gauss", Path: "/b", Status: StatusRunning})
	s.jobs[0].modifiedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	s.jobs[1].modifiedAt = time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)

	s.Merge(s.clone())

	if s.Len() != 2 {
		t.Fatalf("self-merge changed job count: len = %d, want 2", s.Len())
	}
	want := []JobSpec{
		{JobID: "111", Program: "vasp", Path: "/a", Status: StatusUnknown, Comment: "converged"},
		{JobID: "222", Program: "gauss", Path: "/b", Status: StatusRunning},
	}
	stamps := []time.Time{
		time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC),
	}
	for i, job := range s.Jobs() {
		if got := job.Snapshot(); got != want[i] {
			t.Fatalf("self-merge mutated job %d: %+v", i, got)
		}
		if !job.ModifiedAt().Equal(stamps[i]) {
			t.Fatalf("self-merge bumped timestamp of job %d to %v", i, job.ModifiedAt())
		}
	}
}

// fixedProbe classifies every job id the same way.
type fixedProbe struct {
	outcome ProbeOutcome
	calls   int
}

func (p *fixedProbe) Lookup(ctx context.Context, jobID string) (ProbeOutcome, error) {
	p.calls++
	return p.outcome, nil
}

func TestServer_AutoUpdateMarksMissingJobsFinished(t *testing.T) {
	s := NewServer(Localhost)
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Status: StatusRunning})

	transitions, err := s.AutoUpdate(context.Background(), &fixedProbe{outcome: ProbeMissing})
	if err != nil {
		t.Fatalf("AutoUpdate() error: %v", err)
	}
	if len(transitions) != 1 {
		t.Fatalf("transitions = %v, want one", transitions)
	}
	tr := transitions[0]
	if tr.From != StatusRunning || tr.To != StatusFinished {
		t.Fatalf("transition = %+v, want running -> finished", tr)
	}
	if got := s.jobs[0].Status(); got != StatusFinished {
		t.Fatalf("status = %q, want finished", got)
	}
}

func TestServer_AutoUpdateSkipsTerminalJobs(t *testing.T) {
	s := NewServer(Localhost)
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Status: StatusFinished})
	addJob(t, s, JobSpec{JobID: "222", Program: "vasp", Path: "/b", Status: StatusAnalysed})

	probe := &fixedProbe{outcome: ProbeRunning}
	transitions, err := s.AutoUpdate(context.Background(), probe)
	if err != nil {
		t.Fatalf("AutoUpdate() error: %v", err)
	}
	if len(transitions) != 0 {
		t.Fatalf("terminal jobs transitioned: %v", transitions)
	}
	if probe.calls != 0 {
		t.Fatalf("terminal jobs were probed %d times", probe.calls)
	}
}

func TestServer_AutoUpdateOnlyTouchesLocalhost(t *testing.T) {
	s := NewServer("cluster1")
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Status: StatusRunning})

	probe := &fixedProbe{outcome: ProbeMissing}
	transitions, err := s.AutoUpdate(context.Background(), probe)
	if err != nil {
		t.Fatalf("AutoUpdate() error: %v", err)
	}
	if len(transitions) != 0 || probe.calls != 0 {
		t.Fatal("non-localhost server was probed")
	}
	if got := s.jobs[0].Status(); got != StatusRunning {
		t.Fatalf("status = %q, want running", got)
	}
}

func TestServer_AutoUpdatePresentKeepsStatus(t *testing.T) {
	s := NewServer(Localhost)
	addJob(t, s, JobSpec{JobID: "111", Program: "vasp", Path: "/a", Status: StatusQueueing})
	before := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	s.jobs[0].modifiedAt = before

	transitions, err := s.AutoUpdate(context.Background(), &fixedProbe{outcome: ProbePresent})
	if err != nil {
		t.Fatalf("AutoUpdate() error: %v", err)
	}
	if len(transitions) != 0 {
		t.Fatalf("unclassified row must not transition: %v", transitions)
	}
	if got := s.jobs[0].Status(); got != StatusQueueing {
		t.Fatalf("status = %q, want queueing", got)
	}
	if !s.jobs[0].ModifiedAt().After(before) {
		t.Fatal("classification must bump the modification timestamp")
	}
}
