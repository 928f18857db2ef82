package cmd

import (
	"strings"

	"github.com/3leaps/jobkeep/pkg/jobcache"
)

// A job description is a word stream of "key: value" pairs: a new pair
// starts at any word that is a known key ending in a colon, so values may
// contain spaces without quoting:
//
//	jobkeep add job_id: 1234 program: sim path: /scratch/run1 comment: first production run
type jobDesc struct {
	fields map[string]string
}

// descKeys is the closed set of job description keys.
var descKeys = map[string]bool{
	"job_id":       true,
	"program":      true,
	"path":         true,
	"input_fname":  true,
	"output_fname": true,
	"status":       true,
	"submit":       true,
	"comment":      true,
}

// identityKeys are fixed at creation and rejected by modify.
var identityKeys = map[string]bool{
	"job_id":  true,
	"program": true,
	"path":    true,
}

func parseJobDesc(words []string) (*jobDesc, error) {
	if len(words) == 0 {
		return nil, &jobcache.ValidationError{Message: "a job description (key: value ...) is required"}
	}

	first := words[0]
	if !strings.HasSuffix(first, ":") || !descKeys[strings.TrimSuffix(first, ":")] {
		return nil, &jobcache.ValidationError{Field: first, Message: "invalid job descriptor (keys are job_id, program, path, input_fname, output_fname, status, submit, comment, each ending with a colon)"}
	}

	desc := &jobDesc{fields: make(map[string]string)}
	key := strings.TrimSuffix(first, ":")
	var value []string
	for _, word := range words[1:] {
		if strings.HasSuffix(word, ":") && descKeys[strings.TrimSuffix(word, ":")] {
			desc.fields[key] = strings.Join(value, " ")
			key = strings.TrimSuffix(word, ":")
			value = nil
			continue
		}
		value = append(value, word)
	}
	desc.fields[key] = strings.Join(value, " ")
	return desc, nil
}

// spec builds the creation spec for add. Required fields are enforced by
// the data layer.
func (d *jobDesc) spec() (jobcache.JobSpec, error) {
	status, err := jobcache.ParseStatus(d.fields["status"])
	if err != nil {
		return jobcache.JobSpec{}, err
	}
	return jobcache.JobSpec{
		JobID:       d.fields["job_id"],
		Program:     d.fields["program"],
		Path:        d.fields["path"],
		InputFname:  d.fields["input_fname"],
		OutputFname: d.fields["output_fname"],
		Status:      status,
		Submit:      d.fields["submit"],
		Comment:     d.fields["comment"],
	}, nil
}

// updates builds the mutable-field updates for modify. The identity
// fields (job_id, program, path) are set once at creation; a modify
// naming one is rejected rather than silently ignored.
func (d *jobDesc) updates() (jobcache.FieldUpdates, error) {
	for key := range d.fields {
		if identityKeys[key] {
			return jobcache.FieldUpdates{}, &jobcache.ValidationError{Field: key, Message: "identity field cannot be modified"}
		}
	}
	status, err := jobcache.ParseStatus(d.fields["status"])
	if err != nil {
		return jobcache.FieldUpdates{}, err
	}
	updates := jobcache.FieldUpdates{
		InputFname:  d.fields["input_fname"],
		OutputFname: d.fields["output_fname"],
		Submit:      d.fields["submit"],
		Comment:     d.fields["comment"],
	}
	if d.fields["status"] != "" {
		updates.Status = status
	}
	return updates, nil
}
