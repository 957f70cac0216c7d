package models

import "time"

// EventType names a lifecycle notification
type EventType string

const (
	EventAssigned       EventType = "assigned"
	EventCompleted      EventType = "completed"
	EventDepleted       EventType = "depleted"
	EventRequeued       EventType = "requeued"
	EventOrderCompleted EventType = "order_completed"
)

// RequeueReason tells why a printing job was sent back to the queue
type RequeueReason string

const (
	ReasonDepleted    RequeueReason = "consumable_depleted"
	ReasonUnavailable RequeueReason = "printer_unavailable"
)

// Event is a lifecycle notification published by the scheduler
type Event struct {
	ID      string        `json:"id"`
	Type    EventType     `json:"type"`
	Time    time.Time     `json:"time"`
	Job     *PrintJob     `json:"job,omitempty"`
	Printer *Printer      `json:"printer,omitempty"`
	OrderID string        `json:"order_id,omitempty"`
	Reason  RequeueReason `json:"reason,omitempty"`
}
