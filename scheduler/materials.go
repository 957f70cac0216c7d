package scheduler

import (
	"strings"

	"github.com/devadigapratham/printfarm/api/models"
)

// consumableTable maps model name fragments to the filament the part is printed in.
// The first matching fragment wins; anything unmatched prints in PLA.
var consumableTable = []struct {
	fragment string
	kind     string
}{
	{"flex", "TPU"},
	{"gasket", "TPU"},
	{"grip", "TPU"},
	{"phone case", "TPU"},
	{"enclosure", "ABS"},
	{"car body", "ABS"},
	{"heat", "ABS"},
	{"bracket", "PETG"},
	{"mount", "PETG"},
	{"outdoor", "PETG"},
	{"bottle", "PETG"},
}

const defaultConsumableKind = "PLA"

// ConsumableFor returns the filament kind a model is printed in
func ConsumableFor(modelRef string) string {
	name := strings.ToLower(modelRef)
	for _, row := range consumableTable {
		if strings.Contains(name, row.fragment) {
			return row.kind
		}
	}
	return defaultConsumableKind
}

// consumableForItem honors an explicit kind on the item before consulting the table
func consumableForItem(item models.OrderItem) string {
	if kind, ok := models.NormalizeConsumableKind(item.ConsumableKind); ok {
		return kind
	}
	return ConsumableFor(item.ModelRef)
}
