package handler

import (
	"io"
	"time"

	"github.com/avelar/songforge/internal/api/middleware"
	"github.com/avelar/songforge/internal/service"
	"github.com/gin-gonic/gin"
)

// EventsHandler streams generation lifecycle events over Server-Sent Events.
type EventsHandler struct {
	hub       *service.EventHub
	heartbeat time.Duration
}

// NewEventsHandler creates a new events handler. heartbeat bounds how long a
// proxy sees an idle connection.
func NewEventsHandler(hub *service.EventHub, heartbeat time.Duration) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &EventsHandler{
		hub:       hub,
		heartbeat: heartbeat,
	}
}

// Stream handles GET /api/v1/events. The connection stays open until the
// client disconnects; job transitions arrive as "generation" events and idle
// periods are bridged with "heartbeat" events.
// Parameters:
//   - c: Gin request context.
// Returns: none (streams SSE frames).
func (h *EventsHandler) Stream(c *gin.Context) {
	profile := middleware.GetProfile(c)

	events, cancel := h.hub.Subscribe(profile.ID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("generation", ev)
			return true
		case <-ticker.C:
			c.SSEvent("heartbeat", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}
