package scheduler

import (
	"strings"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
)

// Estimate is the expected print time and filament use of one copy of a model
type Estimate struct {
	EstimatedDuration  time.Duration `json:"estimated_duration"`
	ConsumableRequired float64       `json:"consumable_required"`
}

// Estimator looks up estimates for models. It is consulted on order intake only,
// never while ticking or draining the queue.
type Estimator interface {
	GetEstimate(modelRef string) (Estimate, bool)
}

// StaticEstimates is an Estimator backed by a fixed table keyed by model name
type StaticEstimates map[string]Estimate

// GetEstimate implements Estimator. Lookups are case-insensitive.
func (s StaticEstimates) GetEstimate(modelRef string) (Estimate, bool) {
	e, ok := s[normalizeModel(modelRef)]
	return e, ok
}

// NewStaticEstimates builds a table with normalized keys
func NewStaticEstimates(table map[string]Estimate) StaticEstimates {
	s := make(StaticEstimates, len(table))
	for k, v := range table {
		s[normalizeModel(k)] = v
	}
	return s
}

func normalizeModel(modelRef string) string {
	return strings.ToLower(strings.TrimSpace(modelRef))
}

// estimateFor resolves the estimate of an order item: the item's own duration if
// set, then the estimator, then the defaults.
func estimateFor(est Estimator, item models.OrderItem) Estimate {
	out := Estimate{
		EstimatedDuration:  DefaultEstimatedDuration,
		ConsumableRequired: DefaultConsumableRequired,
	}
	if est != nil {
		if e, ok := est.GetEstimate(item.ModelRef); ok {
			if e.EstimatedDuration > 0 {
				out.EstimatedDuration = e.EstimatedDuration
			}
			if e.ConsumableRequired > 0 {
				out.ConsumableRequired = e.ConsumableRequired
			}
		}
	}
	if item.EstimatedDuration > 0 {
		out.EstimatedDuration = item.EstimatedDuration
	}
	return out
}
