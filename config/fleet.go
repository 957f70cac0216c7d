package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/devadigapratham/printfarm/scheduler"
)

// Fleet is the content of a fleet file
type Fleet struct {
	Printers  []models.Printer
	Estimates scheduler.StaticEstimates
}

type fleetFile struct {
	Printers  []models.Printer         `json:"printers"`
	Estimates map[string]estimateEntry `json:"estimates"`
}

type estimateEntry struct {
	EstimatedDuration  string  `json:"estimated_duration"`
	ConsumableRequired float64 `json:"consumable_required"`
}

// LoadFleet reads a fleet file. Printers without a status start Idle.
func LoadFleet(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet file: %w", err)
	}

	var raw fleetFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse fleet file %s: %w", path, err)
	}

	fleet := &Fleet{Printers: raw.Printers}
	for i := range fleet.Printers {
		if fleet.Printers[i].Status == "" {
			fleet.Printers[i].Status = models.PrinterIdle
		}
	}

	table := make(map[string]scheduler.Estimate, len(raw.Estimates))
	for model, e := range raw.Estimates {
		var d time.Duration
		if e.EstimatedDuration != "" {
			d, err = time.ParseDuration(e.EstimatedDuration)
			if err != nil {
				return nil, fmt.Errorf("estimate for %q: %w", model, err)
			}
		}
		if d < 0 || e.ConsumableRequired < 0 {
			return nil, fmt.Errorf("estimate for %q must not be negative", model)
		}
		table[model] = scheduler.Estimate{EstimatedDuration: d, ConsumableRequired: e.ConsumableRequired}
	}
	fleet.Estimates = scheduler.NewStaticEstimates(table)

	return fleet, nil
}
