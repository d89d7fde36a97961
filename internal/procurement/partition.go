package procurement

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/inventory"
)

// SupplierGroup is the set of lines destined for one supplier.
type SupplierGroup struct {
	SupplierID uuid.UUID
	Items      []Item
}

// Partition splits requested lines by each material's supplier, keeping the
// order in which suppliers first appear. Any material without a supplier
// fails the whole request, as does an unknown material.
func Partition(lines []ItemInput, materials map[uuid.UUID]inventory.Material) ([]SupplierGroup, error) {
	var groups []SupplierGroup
	index := make(map[uuid.UUID]int)
	for _, line := range lines {
		m, ok := materials[line.MaterialID]
		if !ok {
			return nil, validationf("material %s not found", line.MaterialID)
		}
		if m.SupplierID == nil || *m.SupplierID == uuid.Nil {
			return nil, fmt.Errorf("%s: %w", m.Name, ErrMissingSupplier)
		}
		i, ok := index[*m.SupplierID]
		if !ok {
			i = len(groups)
			index[*m.SupplierID] = i
			groups = append(groups, SupplierGroup{SupplierID: *m.SupplierID})
		}
		g := &groups[i]
		g.Items = append(g.Items, Item{
			LineNo:       len(g.Items) + 1,
			MaterialID:   m.ID,
			MaterialName: m.Name,
			Unit:         m.Unit,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
		})
	}
	return groups, nil
}
