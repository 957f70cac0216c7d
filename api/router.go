package api

import (
	"github.com/devadigapratham/printfarm/api/handlers"
	"github.com/devadigapratham/printfarm/raft"
	"github.com/gin-gonic/gin"
)

// SetupRouter sets up the API routes. transport is nil unless jobs are replicated through raft.
func SetupRouter(handler *handlers.Handler, transport *raft.Transport) *gin.Engine {
	router := gin.Default()

	// API group
	api := router.Group("/api/v1")
	api.Use(handler.RaftLeaderMiddleware())
	{
		// Order endpoints
		api.POST("/orders", handler.CreateOrder)
		api.GET("/orders", handler.GetOrders)
		api.GET("/orders/:id", handler.GetOrder)

		// Printer endpoints
		api.POST("/printers", handler.CreatePrinter)
		api.GET("/printers", handler.GetPrinters)
		api.GET("/printers/:id", handler.GetPrinter)
		api.DELETE("/printers/:id", handler.DeletePrinter)
		api.POST("/printers/:id/consumable", handler.LoadConsumable)
		api.POST("/printers/:id/status", handler.SetPrinterStatus)

		// Print job endpoints
		api.GET("/print_jobs", handler.GetPrintJobs)
		api.GET("/print_jobs/:id", handler.GetPrintJob)
		api.DELETE("/print_jobs/:id", handler.DeletePrintJob)

		api.POST("/queue/drain", handler.DrainQueue)
	}

	router.GET("/ws", handler.StreamEvents)
	router.GET("/status", handler.GetStatus)

	// Cluster membership
	if transport != nil {
		raftHandler := gin.WrapH(transport.RaftHandler())
		router.POST("/raft/join", raftHandler)
		router.POST("/raft/leave", raftHandler)
	}

	return router
}
