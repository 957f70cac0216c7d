package handlers

import (
	"errors"
	"net/http"

	"github.com/devadigapratham/printfarm/events"
	"github.com/devadigapratham/printfarm/raft"
	"github.com/devadigapratham/printfarm/registry"
	"github.com/devadigapratham/printfarm/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

// Handler represents the API handlers
type Handler struct {
	Scheduler *scheduler.Scheduler
	Printers  *registry.Registry
	// Node is nil unless jobs are replicated through raft.
	Node *raft.Node
	// Authority, when set, must report true before writes are accepted.
	Authority scheduler.Authority
	Hub       *events.Hub
	Logger    hclog.Logger

	upgrader websocket.Upgrader
}

// NewHandler creates a new Handler
func NewHandler(sched *scheduler.Scheduler, printers *registry.Registry, node *raft.Node, hub *events.Hub, logger hclog.Logger) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handler{
		Scheduler: sched,
		Printers:  printers,
		Node:      node,
		Hub:       hub,
		Logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RaftLeaderMiddleware refuses writes on followers and points the client at the
// leader. A leader still rebuilding its state answers 503 until it is ready.
func (h *Handler) RaftLeaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only apply to write operations
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" {
			c.Next()
			return
		}
		if h.Node != nil && !h.Node.Leader() {
			// Respond with the leader's address
			c.JSON(http.StatusConflict, gin.H{
				"error":  "not the leader",
				"leader": h.Node.LeaderAddress(),
			})
			c.Abort()
			return
		}
		if h.Authority != nil && !h.Authority.Leader() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recovering print jobs, retry shortly"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetStatus reports node, scheduler and fleet state
func (h *Handler) GetStatus(c *gin.Context) {
	status := gin.H{
		"summary":  h.Scheduler.Summary(),
		"printers": len(h.Printers.ListAll()),
		"idle":     len(h.Printers.ListAvailable()),
	}
	if h.Hub != nil {
		status["ws_clients"] = h.Hub.Clients()
	}
	if h.Node != nil {
		status["is_leader"] = h.Node.Leader()
		status["leader_addr"] = h.Node.LeaderAddress()
		status["state"] = h.Node.State().String()
	}
	if h.Authority != nil {
		status["ready"] = h.Authority.Leader()
	}
	c.JSON(http.StatusOK, status)
}

// persistPrinters saves the printer catalog after an admin change
func (h *Handler) persistPrinters() {
	if err := h.Printers.Persist(); err != nil {
		h.Logger.Error("failed to persist printers", "error", err)
	}
}

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound),
		errors.Is(err, scheduler.ErrOrderNotFound),
		errors.Is(err, registry.ErrPrinterNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrJobNotDeletable),
		errors.Is(err, scheduler.ErrDuplicateOrderID),
		errors.Is(err, registry.ErrPrinterExists),
		errors.Is(err, registry.ErrPrinterBusy):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}
