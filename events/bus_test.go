package events

import (
	"testing"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
)

func TestBusDeliversToEverySubscriber(t *testing.T) {
	bus := NewBus(4, nil)
	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.OnAssigned(models.PrintJob{ID: 1, OrderID: "o1"})

	for _, ch := range []<-chan models.Event{a, b} {
		select {
		case e := <-ch:
			if e.Type != models.EventAssigned || e.Job == nil || e.Job.ID != 1 || e.OrderID != "o1" {
				t.Fatalf("unexpected event %+v", e)
			}
			if e.ID == "" || e.Time.IsZero() {
				t.Fatal("event id and time must be filled in")
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus(1, nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.OnCompleted(models.PrintJob{ID: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if e := <-ch; e.Job.ID != 0 {
		t.Fatalf("expected first event to be kept, got job %d", e.Job.ID)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(1, nil)
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()

	bus.OnRequeued(models.PrintJob{ID: 1}, models.ReasonUnavailable)
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}

func TestBusDepletedCarriesPrinter(t *testing.T) {
	bus := NewBus(1, nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.OnDepleted(models.Printer{ID: 3}, models.PrintJob{ID: 9})
	e := <-ch
	if e.Type != models.EventDepleted || e.Printer == nil || e.Printer.ID != 3 || e.Reason != models.ReasonDepleted {
		t.Fatalf("unexpected event %+v", e)
	}
}
