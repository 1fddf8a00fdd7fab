package v1

import (
	"net/http"

	"github.com/vulntor/attackq/pkg/server/api"
)

// ReadyzHandler returns 200 when the server is ready, 503 otherwise.
//
// The ready flag is set by the app runtime once the scheduler has started
// and the listener is up, and cleared at the start of shutdown.
func ReadyzHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil && deps.Ready.Load() && deps.Jobs != nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("Ready"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Not Ready"))
		}
	}
}
