package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/devadigapratham/printfarm/registry"
	"github.com/gin-gonic/gin"
)

type consumableRequest struct {
	Kind  string   `json:"kind" binding:"required"`
	Level *float64 `json:"level"`
}

type printerStatusRequest struct {
	Status models.PrinterStatus `json:"status" binding:"required"`
}

func printerID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid printer id"})
		return 0, false
	}
	return id, true
}

// CreatePrinter registers a new printer
func (h *Handler) CreatePrinter(c *gin.Context) {
	var printer models.Printer
	if err := c.ShouldBindJSON(&printer); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	added, err := h.Printers.Add(printer)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.persistPrinters()
	h.Scheduler.DrainQueue()

	added, _ = h.Printers.Get(added.ID)
	c.JSON(http.StatusCreated, added)
}

// GetPrinters returns all printers
func (h *Handler) GetPrinters(c *gin.Context) {
	c.JSON(http.StatusOK, h.Printers.ListAll())
}

// GetPrinter returns one printer
func (h *Handler) GetPrinter(c *gin.Context) {
	id, ok := printerID(c)
	if !ok {
		return
	}
	printer, found := h.Printers.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
		return
	}
	c.JSON(http.StatusOK, printer)
}

// DeletePrinter removes a printer. A job it was running is requeued on the next tick.
func (h *Handler) DeletePrinter(c *gin.Context) {
	id, ok := printerID(c)
	if !ok {
		return
	}
	if err := h.Printers.Remove(id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LoadConsumable swaps the filament kind of a printer and, when a level is given,
// installs a spool with that level
func (h *Handler) LoadConsumable(c *gin.Context) {
	id, ok := printerID(c)
	if !ok {
		return
	}
	var req consumableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, valid := models.NormalizeConsumableKind(req.Kind); !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown consumable kind %q", req.Kind)})
		return
	}

	if req.Level != nil {
		if err := h.Printers.LoadConsumable(id, req.Kind, *req.Level); err != nil {
			abortWithError(c, err)
			return
		}
	} else if !h.Printers.ChangeConsumable(id, req.Kind) {
		if _, found := h.Printers.Get(id); !found {
			abortWithError(c, fmt.Errorf("printer %d: %w", id, registry.ErrPrinterNotFound))
			return
		}
		abortWithError(c, fmt.Errorf("printer %d: %w", id, registry.ErrPrinterBusy))
		return
	}
	h.persistPrinters()
	h.Scheduler.DrainQueue()

	printer, _ := h.Printers.Get(id)
	c.JSON(http.StatusOK, printer)
}

// SetPrinterStatus moves a printer between operator states
func (h *Handler) SetPrinterStatus(c *gin.Context) {
	id, ok := printerID(c)
	if !ok {
		return
	}
	var req printerStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Printers.SetStatus(id, req.Status); err != nil {
		abortWithError(c, err)
		return
	}
	h.persistPrinters()
	if req.Status == models.PrinterIdle {
		h.Scheduler.DrainQueue()
	}

	printer, _ := h.Printers.Get(id)
	c.JSON(http.StatusOK, printer)
}
