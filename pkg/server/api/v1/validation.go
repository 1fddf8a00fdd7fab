package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/storage"
)

var validate = validator.New()

const defaultListLimit = 50

// SubmitJobRequest is the body of POST /api/v1/jobs. Type-specific
// parameter rules are enforced by the scheduler on submit.
type SubmitJobRequest struct {
	Target      string         `json:"target" validate:"required"`
	Type        job.Type       `json:"type" validate:"required"`
	Parameters  map[string]any `json:"parameters"`
	Priority    bool           `json:"priority"`
	MaxAttempts int            `json:"max_attempts" validate:"gte=0,lte=100"`
	// Timeout is a Go duration string such as "45m".
	Timeout string `json:"timeout"`
}

// Spec converts the request into a job spec.
func (req SubmitJobRequest) Spec() (job.Spec, error) {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return job.Spec{}, &ValidationError{Field: jsonName(verrs[0].Field()), Reason: "failed " + verrs[0].Tag()}
		}
		return job.Spec{}, &ValidationError{Reason: err.Error()}
	}

	spec := job.Spec{
		Target:      req.Target,
		Type:        req.Type,
		Parameters:  req.Parameters,
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d < 0 {
			return job.Spec{}, &ValidationError{Field: "timeout", Reason: "must be a positive duration such as 30m"}
		}
		spec.Timeout = d
	}
	return spec, nil
}

func jsonName(field string) string {
	switch field {
	case "MaxAttempts":
		return "max_attempts"
	default:
		return strings.ToLower(field)
	}
}

// ListJobsQuery represents supported query params for GET /api/v1/jobs
type ListJobsQuery struct {
	States []job.State
	Limit  int
	Cursor string // Opaque cursor for pagination (empty for first page)
}

// Filter converts the query into a storage filter.
func (q ListJobsQuery) Filter() storage.JobFilter {
	return storage.JobFilter{States: q.States, Limit: q.Limit, Cursor: q.Cursor}
}

// ParseListJobsQuery parses and validates query params.
// state may be repeated or comma separated. Limit defaults to 50.
func ParseListJobsQuery(r *http.Request) (*ListJobsQuery, error) {
	q := r.URL.Query()
	var res ListJobsQuery

	for _, raw := range q["state"] {
		for _, v := range strings.Split(raw, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if err := validate.Var(v, "oneof=queued running completed failed cancelled"); err != nil {
				return nil, &ValidationError{Field: "state", Reason: "must be one of: queued,running,completed,failed,cancelled"}
			}
			res.States = append(res.States, job.State(v))
		}
	}

	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &ValidationError{Field: "limit", Reason: "must be an integer"}
		}
		if err := validate.Var(n, "min=1,max=500"); err != nil {
			return nil, &ValidationError{Field: "limit", Reason: "must be between 1 and 500"}
		}
		res.Limit = n
	}

	// Cursor parameter (opaque string, decoded by the backend)
	if v := strings.TrimSpace(q.Get("cursor")); v != "" {
		if _, err := storage.DecodeCursor(v); err != nil {
			return nil, &ValidationError{Field: "cursor", Reason: "malformed"}
		}
		res.Cursor = v
	}

	if res.Limit == 0 {
		res.Limit = defaultListLimit
	}

	return &res, nil
}

// ValidationError is a lightweight error used for 400 responses. It wraps
// job.ErrValidation so api.WriteError maps it like a rejected spec.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return "validation failed"
	}
	if e.Reason == "" {
		return e.Field + ": invalid"
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return job.ErrValidation
}
