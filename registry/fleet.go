package registry

import (
	"fmt"

	"github.com/devadigapratham/printfarm/api/models"
)

// DefaultFleet builds n idle printers with full spools, cycling through the stocked
// filament kinds so that most kinds have a loaded printer.
func DefaultFleet(n int) []models.Printer {
	printers := make([]models.Printer, 0, n)
	for i := 1; i <= n; i++ {
		kind := "PLA"
		// Three of every five printers run PLA, the rest rotate through the others
		if i%5 == 4 {
			kind = models.ConsumableKinds[1+(i/5)%3]
		} else if i%5 == 0 {
			kind = models.ConsumableKinds[1+(i/5+1)%3]
		}
		printers = append(printers, models.Printer{
			ID:              i,
			Name:            fmt.Sprintf("Printer %d", i),
			Status:          models.PrinterIdle,
			ConsumableKind:  kind,
			ConsumableLevel: 100,
		})
	}
	return printers
}
