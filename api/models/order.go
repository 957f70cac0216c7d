package models

import "time"

// OrderStatus is the fulfilment state of a customer order
type OrderStatus string

const (
	OrderPending    OrderStatus = "Pending"
	OrderProcessing OrderStatus = "Processing"
	OrderCompleted  OrderStatus = "Completed"
	OrderCancelled  OrderStatus = "Cancelled"
)

// OrderItem is a requested model and how many copies of it to print
type OrderItem struct {
	ID                int           `json:"id"`
	ModelRef          string        `json:"model_reference"`
	Quantity          int           `json:"quantity"`
	ConsumableKind    string        `json:"consumable_kind,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
}

// Order represents a customer order handed over by order intake
type Order struct {
	ID        string      `json:"id"`
	Items     []OrderItem `json:"items"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	JobIDs    []int64     `json:"job_ids,omitempty"`
}
