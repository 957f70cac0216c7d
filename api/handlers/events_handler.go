package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type initialState struct {
	Type     string      `json:"type"`
	Printers interface{} `json:"printers"`
	Jobs     interface{} `json:"jobs"`
}

// StreamEvents upgrades to a WebSocket, sends the current printers and jobs and
// then streams lifecycle events
func (h *Handler) StreamEvents(c *gin.Context) {
	if h.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream disabled"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("failed to upgrade to websocket", "error", err)
		return
	}

	// Written before registering, so the hub is the only writer afterwards.
	initial, err := json.Marshal(initialState{
		Type:     "initial_state",
		Printers: h.Printers.ListAll(),
		Jobs:     h.Scheduler.Jobs(""),
	})
	if err == nil {
		conn.WriteMessage(websocket.TextMessage, initial)
	}

	if !h.Hub.Register(conn) {
		return
	}

	// Handle disconnection
	go func() {
		for {
			// Clients do not send anything we act on
			if _, _, err := conn.ReadMessage(); err != nil {
				h.Hub.Unregister(conn)
				return
			}
		}
	}()
}
