package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
)

// ssePingInterval keeps proxies from closing idle streams
const ssePingInterval = 15 * time.Second

// SSEHandler streams a job's progress events as Server-Sent Events.
// Reconnection with Last-Event-ID replays everything the client missed.
type SSEHandler struct {
	service *jobs.Service
	stream  interfaces.EventStream
	logger  arbor.ILogger
}

// NewSSEHandler creates a new SSE stream handler
func NewSSEHandler(service *jobs.Service, stream interfaces.EventStream, logger arbor.ILogger) *SSEHandler {
	return &SSEHandler{
		service: service,
		stream:  stream,
		logger:  logger,
	}
}

// StreamJobHandler handles GET /api/jobs/{id}/stream
func (h *SSEHandler) StreamJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	userID, ok := RequireUser(w, r)
	if !ok {
		return
	}

	// Ownership gate: a subscriber never receives another user's events
	if _, err := h.service.Get(r.Context(), userID, jobID); err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	sinceID := parseLastEventID(r)

	events, err := h.stream.Subscribe(r.Context(), jobID, sinceID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to subscribe")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable proxy buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug().
		Str("job_id", jobID).
		Int64("since_event_id", int64(sinceID)).
		Msg("SSE subscriber connected")

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	for {
		select {
		case event, open := <-events:
			if !open {
				h.logger.Debug().Str("job_id", jobID).Msg("SSE stream closed")
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				return
			}
			flusher.Flush()

		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// parseLastEventID honours the Last-Event-ID request header, with a "since"
// query parameter fallback for clients that cannot set headers
func parseLastEventID(r *http.Request) uint64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("since")
	}
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// writeSSEEvent renders the three-line wire format:
// id, event, data, blank line
func writeSSEEvent(w http.ResponseWriter, event *models.ProgressEvent) error {
	// Copy the payload: it is shared across subscribers
	payload := make(map[string]interface{}, len(event.Payload)+1)
	for k, v := range event.Payload {
		payload[k] = v
	}
	payload["timestamp"] = event.Timestamp.Format(time.RFC3339)

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.EventID, event.Type, data)
	return err
}
