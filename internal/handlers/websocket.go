package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WebSocketHandler mirrors a job's progress events over a WebSocket for UI
// clients. The SSE endpoint remains the contractual stream; this mirror is
// best-effort.
type WebSocketHandler struct {
	service  *jobs.Service
	stream   interfaces.EventStream
	config   *common.WebSocketConfig
	logger   arbor.ILogger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket event mirror
func NewWebSocketHandler(service *jobs.Service, stream interfaces.EventStream, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		stream:  stream,
		config:  config,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsEvent is the JSON frame pushed to WebSocket clients
type wsEvent struct {
	EventID   uint64                 `json:"event_id"`
	Type      models.EventType       `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp string                 `json:"timestamp"`
}

// HandleWebSocket handles GET /ws?job_id={id}&since={event_id}
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r)
	if !ok {
		return
	}

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	// Same ownership gate as the SSE stream
	if _, err := h.service.Get(r.Context(), userID, jobID); err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	sinceID := parseLastEventID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := h.stream.Subscribe(ctx, jobID, sinceID)
	if err != nil {
		return
	}

	h.logger.Debug().
		Str("job_id", jobID).
		Msg("WebSocket client connected")

	// Read loop: consume control frames, detect client close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case event, open := <-events:
			if !open {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if !h.allowed(event.Type) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wsEvent{
				EventID:   event.EventID,
				Type:      event.Type,
				Payload:   event.Payload,
				Timestamp: event.Timestamp.Format(time.RFC3339),
			}); err != nil {
				return
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// allowed applies the configured event whitelist; empty allows all
func (h *WebSocketHandler) allowed(eventType models.EventType) bool {
	if len(h.config.AllowedEvents) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedEvents {
		if allowed == string(eventType) {
			return true
		}
	}
	return false
}
