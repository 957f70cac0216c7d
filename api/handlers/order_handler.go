package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/devadigapratham/printfarm/scheduler"
	"github.com/gin-gonic/gin"
)

type orderItemRequest struct {
	ID                int    `json:"id"`
	ModelRef          string `json:"model_reference" binding:"required"`
	Quantity          int    `json:"quantity" binding:"required"`
	ConsumableKind    string `json:"consumable_kind"`
	EstimatedDuration string `json:"estimated_duration"`
}

type orderRequest struct {
	ID    string             `json:"id"`
	Items []orderItemRequest `json:"items" binding:"required"`
}

type orderResponse struct {
	Order models.Order      `json:"order"`
	Jobs  []models.PrintJob `json:"jobs"`
}

func (r orderRequest) toOrder() (models.Order, error) {
	order := models.Order{ID: r.ID, Items: make([]models.OrderItem, 0, len(r.Items))}
	for i, item := range r.Items {
		var d time.Duration
		if item.EstimatedDuration != "" {
			var err error
			if d, err = time.ParseDuration(item.EstimatedDuration); err != nil {
				return models.Order{}, fmt.Errorf("%w: item %d: %v", scheduler.ErrInvalidOrder, i+1, err)
			}
		}
		id := item.ID
		if id == 0 {
			id = i + 1
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:                id,
			ModelRef:          item.ModelRef,
			Quantity:          item.Quantity,
			ConsumableKind:    item.ConsumableKind,
			EstimatedDuration: d,
		})
	}
	return order, nil
}

// CreateOrder turns an order into print jobs and starts what the idle printers can take
func (h *Handler) CreateOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := req.toOrder()
	if err != nil {
		abortWithError(c, err)
		return
	}

	order, jobs, err := h.Scheduler.ProcessNewOrder(order)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.persistPrinters()

	c.JSON(http.StatusCreated, orderResponse{Order: order, Jobs: jobs})
}

// GetOrders returns all orders
func (h *Handler) GetOrders(c *gin.Context) {
	c.JSON(http.StatusOK, h.Scheduler.Orders())
}

// GetOrder returns one order with its jobs
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.Scheduler.Order(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	jobs := make([]models.PrintJob, 0, len(order.JobIDs))
	for _, id := range order.JobIDs {
		// Completed jobs may have been deleted since.
		if job, err := h.Scheduler.Job(id); err == nil {
			jobs = append(jobs, job)
		}
	}
	c.JSON(http.StatusOK, orderResponse{Order: order, Jobs: jobs})
}
