package events

import (
	"sync"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Bus fans scheduler lifecycle notifications out to subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event and a warning is logged.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan models.Event
	nextID int
	buffer int
	now    func() time.Time
	logger hclog.Logger
}

// NewBus creates a bus whose subscriptions buffer up to buffer events
func NewBus(buffer int, logger hclog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Bus{
		subs:   make(map[int]chan models.Event),
		buffer: buffer,
		now:    time.Now,
		logger: logger,
	}
}

// Subscribe returns a channel of events and a function that ends the subscription
func (b *Bus) Subscribe() (<-chan models.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan models.Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Publish delivers an event to every subscriber
func (b *Bus) Publish(e models.Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Warn("subscriber too slow, event dropped", "subscriber", id, "type", e.Type)
		}
	}
}

// OnAssigned implements scheduler.EventSink
func (b *Bus) OnAssigned(job models.PrintJob) {
	b.Publish(models.Event{Type: models.EventAssigned, Job: &job, OrderID: job.OrderID})
}

// OnCompleted implements scheduler.EventSink
func (b *Bus) OnCompleted(job models.PrintJob) {
	b.Publish(models.Event{Type: models.EventCompleted, Job: &job, OrderID: job.OrderID})
}

// OnDepleted implements scheduler.EventSink
func (b *Bus) OnDepleted(printer models.Printer, job models.PrintJob) {
	b.Publish(models.Event{Type: models.EventDepleted, Job: &job, Printer: &printer, OrderID: job.OrderID, Reason: models.ReasonDepleted})
}

// OnRequeued implements scheduler.EventSink
func (b *Bus) OnRequeued(job models.PrintJob, reason models.RequeueReason) {
	b.Publish(models.Event{Type: models.EventRequeued, Job: &job, OrderID: job.OrderID, Reason: reason})
}

// OnOrderCompleted implements scheduler.EventSink
func (b *Bus) OnOrderCompleted(order models.Order) {
	b.Publish(models.Event{Type: models.EventOrderCompleted, OrderID: order.ID})
}
