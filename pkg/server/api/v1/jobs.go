package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/scheduler"
	"github.com/vulntor/attackq/pkg/server/api"
	"github.com/vulntor/attackq/pkg/storage"
)

// maxBodyBytes bounds submit request bodies.
const maxBodyBytes = 1 << 20

// Routes returns the /api/v1 sub-router.
func Routes(deps *api.Deps) http.Handler {
	r := chi.NewRouter()

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", SubmitJobHandler(deps))
		r.Get("/", ListJobsHandler(deps))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", GetJobHandler(deps))
			r.Delete("/", CancelJobHandler(deps))
			r.Get("/credentials", JobCredentialsHandler(deps))
			r.Get("/logs", JobLogsHandler(deps))
		})
	})
	r.Get("/credentials", CredentialsHandler(deps))
	r.Get("/stats", StatsHandler(deps))
	if deps.Bus != nil {
		r.Get("/events", EventsHandler(deps))
	}

	return r
}

// SubmitJobHandler handles POST /api/v1/jobs
//
// Request body:
//
//	{"target": "192.0.2.5", "type": "bruteforce", "priority": true, "timeout": "30m",
//	 "parameters": {"service": "ssh", "user_list": "/lists/u.txt", "pass_list": "/lists/p.txt"}}
//
// Responds 202 with the job handle.
func SubmitJobHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitJobRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			reason := err.Error()
			if errors.Is(err, io.EOF) {
				reason = "request body is empty"
			}
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", reason)
			return
		}

		spec, err := req.Spec()
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		handle, err := deps.Jobs.Submit(spec)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		log.Info().
			Str("component", "api").
			Str("job_id", handle.ID).
			Str("lane", string(handle.Lane)).
			Str("target", spec.Target).
			Msg("Job submitted")

		w.Header().Set("Location", "/api/v1/jobs/"+handle.ID)
		api.WriteJSON(w, http.StatusAccepted, handle)
	}
}

// ListJobsHandler handles GET /api/v1/jobs
//
// Query parameters: state (repeatable), limit (1-500, default 50), cursor.
// Returns jobs from storage oldest first, with next_cursor while more remain.
func ListJobsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := ParseListJobsQuery(r)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		ctx, cancel := deps.Config.HandlerContext(r)
		defer cancel()

		page, err := deps.Storage.ListJobs(ctx, query.Filter())
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		if page.Jobs == nil {
			page.Jobs = []job.Job{}
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

// GetJobHandler handles GET /api/v1/jobs/{id}
//
// Live jobs are answered by the scheduler; jobs from earlier runs fall back
// to storage.
func GetJobHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		j, err := deps.Jobs.Status(id)
		if errors.Is(err, scheduler.ErrNotFound) && deps.Storage != nil {
			ctx, cancel := deps.Config.HandlerContext(r)
			defer cancel()
			j, err = deps.Storage.LoadJob(ctx, id)
		}
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, j)
	}
}

// CancelJobHandler handles DELETE /api/v1/jobs/{id}
//
// Responds 202 with the job snapshot; a running job reaches the cancelled
// state once its process has exited. Cancelling a finished job is 409.
func CancelJobHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := deps.Jobs.Cancel(id); err != nil {
			api.WriteError(w, r, err)
			return
		}
		log.Info().
			Str("component", "api").
			Str("job_id", id).
			Msg("Job cancellation requested")

		j, err := deps.Jobs.Status(id)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusAccepted, j)
	}
}

// JobCredentialsHandler handles GET /api/v1/jobs/{id}/credentials
func JobCredentialsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ctx, cancel := deps.Config.HandlerContext(r)
		defer cancel()

		if _, err := deps.Jobs.Status(id); errors.Is(err, scheduler.ErrNotFound) {
			if _, err := deps.Storage.LoadJob(ctx, id); err != nil {
				api.WriteError(w, r, err)
				return
			}
		}

		creds, err := deps.Storage.ListCredentials(ctx, id)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		if creds == nil {
			creds = []extract.Record{}
		}
		api.WriteJSON(w, http.StatusOK, creds)
	}
}

// CredentialsHandler handles GET /api/v1/credentials, every credential found
// by every job.
func CredentialsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := deps.Config.HandlerContext(r)
		defer cancel()

		creds, err := deps.Storage.ListCredentials(ctx, "")
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		if creds == nil {
			creds = []extract.Record{}
		}
		api.WriteJSON(w, http.StatusOK, creds)
	}
}

// JobLogsHandler handles GET /api/v1/jobs/{id}/logs, the job's audit log.
func JobLogsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ctx, cancel := deps.Config.HandlerContext(r)
		defer cancel()

		entries, err := deps.Storage.Logs(ctx, id)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		if entries == nil {
			entries = []storage.LogEntry{}
		}
		api.WriteJSON(w, http.StatusOK, entries)
	}
}

// StatsHandler handles GET /api/v1/stats
//
// Response format:
//
//	{"priority": {"waiting": 0, "active": 1, ...}, "standard": {...}}
func StatsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, deps.Jobs.Stats())
	}
}
