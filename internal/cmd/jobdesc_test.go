package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/jobkeep/pkg/jobcache"
)

func TestParseJobDesc(t *testing.T) {
	tests := []struct {
		name    string
		words   string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "simple pairs",
			words: "job_id: 1234 program: vasp path: /scratch/run1",
			want: map[string]string{
				"job_id":  "1234",
				"program": "vasp",
				"path":    "/scratch/run1",
			},
		},
		{
			name:  "value with spaces",
			words: "job_id: 1234 comment: first production run",
			want: map[string]string{
				"job_id":  "1234",
				"comment": "first production run",
			},
		},
		{
			name:  "colon word that is not a key stays in the value",
			words: "comment: restarted at 10:30 status: running",
			want: map[string]string{
				"comment": "restarted at 10:30",
				"status":  "running",
			},
		},
		{
			name:  "empty value",
			words: "job_id: 1234 comment: status: held",
			want: map[string]string{
				"job_id":  "1234",
				"comment": "",
				"status":  "held",
			},
		},
		{
			name:    "no words",
			words:   "",
			wantErr: true,
		},
		{
			name:    "first word is not a key",
			words:   "1234 job_id: 5678",
			wantErr: true,
		},
		{
			name:    "unknown key is not a key",
			words:   "jobid: 1234",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := parseJobDesc(strings.Fields(tt.words))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, jobcache.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, desc.fields)
		})
	}
}

func TestJobDesc_Spec(t *testing.T) {
	desc, err := parseJobDesc(strings.Fields("job_id: 1234 program: vasp path: /w status: queueing"))
	require.NoError(t, err)

	spec, err := desc.spec()
	require.NoError(t, err)
	assert.Equal(t, "1234", spec.JobID)
	assert.Equal(t, "vasp", spec.Program)
	assert.Equal(t, jobcache.StatusQueueing, spec.Status)
}

func TestJobDesc_SpecRejectsBadStatus(t *testing.T) {
	desc, err := parseJobDesc(strings.Fields("job_id: 1234 status: done"))
	require.NoError(t, err)

	_, err = desc.spec()
	require.Error(t, err)
	assert.True(t, jobcache.IsValidation(err))
}

func TestJobDesc_Updates(t *testing.T) {
	desc, err := parseJobDesc(strings.Fields("status: finished comment: converged to 1e-6"))
	require.NoError(t, err)

	updates, err := desc.updates()
	require.NoError(t, err)
	assert.Equal(t, jobcache.StatusFinished, updates.Status)
	assert.Equal(t, "converged to 1e-6", updates.Comment)
	assert.Empty(t, updates.InputFname)
}

func TestJobDesc_UpdatesRejectIdentityFields(t *testing.T) {
	for _, words := range []string{
		"job_id: 5678",
		"program: gauss",
		"path: /elsewhere",
	} {
		desc, err := parseJobDesc(strings.Fields(words))
		require.NoError(t, err)

		_, err = desc.updates()
		require.Error(t, err, "expected rejection for %q", words)
		assert.True(t, jobcache.IsValidation(err))
	}
}
