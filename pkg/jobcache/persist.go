package jobcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// SchemaVersion is the version tag written into every cache file.
//
// NOTE: The on-disk format is a stable contract. Schema changes must be
// additive or bump this version; Decode rejects files written by a newer
// schema than it understands.
const SchemaVersion = 1

// cacheFile is the persisted envelope: a version tag plus every server
// and its jobs. Jobs keep their hidden modification timestamp so merge
// ordering survives a round-trip.
type cacheFile struct {
	SchemaVersion int            `json:"schema_version"`
	SavedAt       time.Time      `json:"saved_at"`
	Servers       []serverRecord `json:"servers"`
}

type serverRecord struct {
	Hostname string      `json:"hostname"`
	Jobs     []jobRecord `json:"jobs"`
}

type jobRecord struct {
	JobID       string    `json:"job_id"`
	Program     string    `json:"program"`
	Path        string    `json:"path"`
	InputFname  string    `json:"input_fname,omitempty"`
	OutputFname string    `json:"output_fname,omitempty"`
	Status      Status    `json:"status"`
	Submit      string    `json:"submit,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// encodeServers serializes the hostname→JobServer mapping. Servers are
// written localhost first, then sorted, so the file is stable across
// identical dumps.
func encodeServers(servers map[string]*JobServer) ([]byte, error) {
	file := cacheFile{
		SchemaVersion: SchemaVersion,
		SavedAt:       nowUTC(),
		Servers:       make([]serverRecord, 0, len(servers)),
	}
	for _, hostname := range sortedHostnames(servers) {
		server := servers[hostname]
		rec := serverRecord{Hostname: server.hostname, Jobs: make([]jobRecord, 0, len(server.jobs))}
		for _, job := range server.jobs {
			rec.Jobs = append(rec.Jobs, jobRecord{
				JobID:       job.jobID,
				Program:     job.program,
				Path:        job.path,
				InputFname:  job.inputFname,
				OutputFname: job.outputFname,
				Status:      job.status,
				Submit:      job.submit,
				Comment:     job.comment,
				ModifiedAt:  job.modifiedAt,
			})
		}
		file.Servers = append(file.Servers, rec)
	}
	b, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal cache: %w", err)
	}
	return append(b, '\n'), nil
}

// decodeServers deserializes a cache file into a hostname→JobServer
// mapping. Files written by a newer schema are rejected rather than
// silently misread.
func decodeServers(data []byte) (map[string]*JobServer, error) {
	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse cache: %w", err)
	}
	if file.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("cache schema version %d is newer than supported version %d", file.SchemaVersion, SchemaVersion)
	}
	servers := make(map[string]*JobServer, len(file.Servers))
	for _, rec := range file.Servers {
		server := NewServer(rec.Hostname)
		for _, jr := range rec.Jobs {
			server.jobs = append(server.jobs, &Job{
				jobID:       jr.JobID,
				program:     jr.Program,
				path:        jr.Path,
				inputFname:  jr.InputFname,
				outputFname: jr.OutputFname,
				status:      jr.Status,
				submit:      jr.Submit,
				comment:     jr.Comment,
				modifiedAt:  jr.ModifiedAt,
			})
		}
		servers[rec.Hostname] = server
	}
	return servers, nil
}

// writeFileAtomic writes the cache so a concurrent reader never observes
// a partial file: write to a temp file in the same directory, then rename
// over the final path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// sortedHostnames orders hostnames localhost first, then alphabetically.
func sortedHostnames(servers map[string]*JobServer) []string {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == Localhost {
			return true
		}
		if names[j] == Localhost {
			return false
		}
		return names[i] < names[j]
	})
	return names
}
