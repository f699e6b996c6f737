package vehicle

// Gearbox tracks the selected gear. Gear 0 is never selected.
type Gearbox struct {
	ratios []float64
	gear   int
}

// NewGearbox copies ratios; ratios[0] is ignored.
func NewGearbox(ratios []float64) *Gearbox {
	r := make([]float64, len(ratios))
	copy(r, ratios)
	return &Gearbox{ratios: r, gear: 1}
}

func (g *Gearbox) Gear() int    { return g.gear }
func (g *Gearbox) MaxGear() int { return len(g.ratios) - 1 }

// Ratio returns the ratio of the current gear.
func (g *Gearbox) Ratio() float64 { return g.ratios[g.gear] }

// ShiftUp moves up one gear. It is a no-op returning false in top gear.
func (g *Gearbox) ShiftUp() bool {
	if g.gear >= g.MaxGear() {
		return false
	}
	g.gear++
	return true
}

// ShiftDown moves down one gear. It is a no-op returning false in first.
func (g *Gearbox) ShiftDown() bool {
	if g.gear <= 1 {
		return false
	}
	g.gear--
	return true
}

func (g *Gearbox) Reset() { g.gear = 1 }
