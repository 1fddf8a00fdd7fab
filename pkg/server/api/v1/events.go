package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vulntor/attackq/pkg/event"
	"github.com/vulntor/attackq/pkg/server/api"
)

// heartbeatInterval keeps idle event streams open through proxies.
var heartbeatInterval = 15 * time.Second

// EventsHandler handles GET /api/v1/events as a server-sent event stream.
//
// Query parameters:
//   - job: only events of this job id
//   - type: comma separated event types (queued, started, progress, ...)
//
// Each event is written as
//
//	id: 7
//	event: credential_found
//	data: {"job_id":"...","type":"credential_found","time":"...","payload":{...}}
//
// Events published while the client is not connected are not replayed. When
// the client falls behind, a "dropped" event reports how many were lost.
func EventsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimSpace(r.URL.Query().Get("job"))
		var types []event.Type
		if raw := r.URL.Query().Get("type"); raw != "" {
			for _, t := range strings.Split(raw, ",") {
				if t = strings.TrimSpace(t); t != "" {
					types = append(types, event.Type(t))
				}
			}
		}

		rc := http.NewResponseController(w)
		// The stream outlives the server write timeout.
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			log.Debug().Str("component", "api").Err(err).Msg("Cannot clear write deadline for event stream")
		}

		sub := deps.Bus.Subscribe()
		defer sub.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, ": connected\n\n")
		if err := rc.Flush(); err != nil {
			log.Error().Str("component", "api").Err(err).Msg("Streaming unsupported")
			return
		}

		log.Debug().
			Str("component", "api").
			Str("remote", r.RemoteAddr).
			Str("job", jobID).
			Msg("Event stream opened")

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		var seq, reported uint64
		for {
			select {
			case <-r.Context().Done():
				log.Debug().Str("component", "api").Str("remote", r.RemoteAddr).Msg("Event stream closed")
				return

			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}

			case evt, ok := <-sub.Events():
				if !ok {
					return
				}
				if dropped := sub.Dropped(); dropped > reported {
					seq++
					_, _ = fmt.Fprintf(w, "id: %d\nevent: dropped\ndata: {\"count\":%d}\n\n", seq, dropped-reported)
					reported = dropped
				}
				if jobID != "" && evt.JobID != jobID {
					continue
				}
				if len(types) > 0 && !slices.Contains(types, evt.Type) {
					continue
				}
				data, err := json.Marshal(evt)
				if err != nil {
					log.Error().Str("component", "api").Err(err).Msg("Failed to encode event")
					continue
				}
				seq++
				if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, evt.Type, data); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
