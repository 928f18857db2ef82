// Package handlers implements the read-only listing API.
package handlers

import (
	"context"
	"net/http"
	"regexp"

	apperrors "github.com/3leaps/jobkeep/internal/errors"
	"github.com/3leaps/jobkeep/pkg/jobcache"
	"github.com/3leaps/jobkeep/pkg/match"
	"github.com/3leaps/jobkeep/pkg/output"
)

// JobSource produces listings from the job cache. Each call runs a full
// load→dump cycle under the cache lock, so the result is a snapshot, not
// a live view.
type JobSource interface {
	Listing(ctx context.Context, opts jobcache.ListingOptions) (*jobcache.Listing, error)
	Servers(ctx context.Context) ([]ServerSummary, error)
}

// ServerSummary is one row of the servers listing.
type ServerSummary struct {
	Hostname string `json:"hostname"`
	Jobs     int    `json:"jobs"`
}

// Jobs handles GET /api/v1/jobs. Query parameters: host (repeatable,
// globs allowed), pattern (regex over all job fields), terse.
func Jobs(src JobSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		filter, err := match.NewHostFilter(query["host"])
		if err != nil {
			apperrors.RespondWithError(w, apperrors.CodeInvalidArgument, err.Error())
			return
		}

		var pattern *regexp.Regexp
		if raw := query.Get("pattern"); raw != "" {
			pattern, err = regexp.Compile(raw)
			if err != nil {
				apperrors.RespondWithError(w, apperrors.CodeInvalidArgument, "invalid pattern: "+err.Error())
				return
			}
		}

		listing, err := src.Listing(r.Context(), jobcache.ListingOptions{
			Host:    filter.Match,
			Pattern: pattern,
			Terse:   query.Get("terse") == "true" || query.Get("terse") == "1",
		})
		if err != nil {
			respondSourceError(w, err)
			return
		}
		respondJSON(w, listing)
	}
}

// Servers handles GET /api/v1/servers.
func Servers(src JobSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := src.Servers(r.Context())
		if err != nil {
			respondSourceError(w, err)
			return
		}
		respondJSON(w, summaries)
	}
}

func respondSourceError(w http.ResponseWriter, err error) {
	if jobcache.IsLock(err) {
		// Another process holds the cache lock. Expected contention, not
		// a server fault.
		apperrors.RespondWithError(w, apperrors.CodeCacheBusy, err.Error())
		return
	}
	apperrors.RespondWithError(w, apperrors.CodeInternal, err.Error())
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = output.EncodeJSON(w, v)
}
