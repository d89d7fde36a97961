package inventory

// StockChange describes the effect of one posted movement.
type StockChange struct {
	Transaction Transaction `json:"transaction"`
	Material    Material    `json:"material"`
	Before      float64     `json:"before"`
}

// CrossedMinimum reports whether this movement took the material from above
// its minimum stock to at or below it.
func (c StockChange) CrossedMinimum() bool {
	return c.Before > c.Material.MinStock && c.Material.IsLowStock()
}

// NewlyLow filters the changes that newly breached minimum stock.
func NewlyLow(changes []StockChange) []Material {
	var out []Material
	for _, c := range changes {
		if c.CrossedMinimum() {
			out = append(out, c.Material)
		}
	}
	return out
}
