package httpserver

import (
	"context"
	"net/http"
	"time"
)

type ReadyzCheck func(ctx context.Context) error

func Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

func Readyz(timeout time.Duration, checks ...ReadyzCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Status is the body of GET /health.
type Status struct {
	OK           bool   `json:"ok"`
	Env          string `json:"env"`
	DryRun       bool   `json:"dry_run"`
	GraphVersion string `json:"graph_version"`
}

func Health(st Status) http.HandlerFunc {
	st.OK = true
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, st)
	}
}
