package handlers

import (
	"net/http"
	"strconv"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/gin-gonic/gin"
)

func jobID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid print job id"})
		return 0, false
	}
	return id, true
}

// GetPrintJobs returns all print jobs, optionally filtered by status
func (h *Handler) GetPrintJobs(c *gin.Context) {
	// Check if status filter is provided
	status := c.Query("status")
	if status != "" && !models.IsValidPrintJobStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	c.JSON(http.StatusOK, h.Scheduler.Jobs(models.PrintJobStatus(status)))
}

// GetPrintJob returns one print job
func (h *Handler) GetPrintJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	job, err := h.Scheduler.Job(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// DeletePrintJob removes a completed print job
func (h *Handler) DeletePrintJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	if err := h.Scheduler.DeleteJob(id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DrainQueue starts queued jobs on idle printers right away
func (h *Handler) DrainQueue(c *gin.Context) {
	started := h.Scheduler.DrainQueue()
	h.persistPrinters()
	c.JSON(http.StatusOK, gin.H{"started": started})
}
