package vehicle

// Snapshot is a read-only copy of the values a HUD or results screen shows.
type Snapshot struct {
	Speed               float64       `json:"speed"`
	RPM                 float64       `json:"rpm"`
	Gear                int           `json:"gear"`
	MaxGear             int           `json:"max_gear"`
	Nitrous             NitrousStatus `json:"nitrous"`
	NitrousCooldownMs   float64       `json:"nitrous_cooldown_ms"`
	Distance            float64       `json:"distance"`
	TopSpeed            float64       `json:"top_speed"`
	ZeroToHundredMs     *float64      `json:"zero_to_hundred_ms,omitempty"`
	ShiftCount          int           `json:"shift_count"`
	PerfectShiftCount   int           `json:"perfect_shift_count"`
	PerfectShiftPercent float64       `json:"perfect_shift_percent"`
	Finish              FinishTime    `json:"finish"`
}

func (v *Vehicle) Snapshot() Snapshot {
	s := Snapshot{
		Speed:             v.speed,
		RPM:               v.rpm,
		Gear:              v.gearbox.Gear(),
		MaxGear:           v.gearbox.MaxGear(),
		Nitrous:           v.nitrous.Status(),
		NitrousCooldownMs: v.nitrous.CooldownRemaining(),
		Distance:          v.distance,
		TopSpeed:          v.topSpeed,
		ShiftCount:        v.shiftCount,
		PerfectShiftCount: v.perfectShiftCount,
		Finish:            v.finish,
	}
	if t, ok := v.ZeroToHundred(); ok {
		s.ZeroToHundredMs = &t
	}
	if v.shiftCount > 0 {
		s.PerfectShiftPercent = float64(v.perfectShiftCount) / float64(v.shiftCount) * 100
	}
	return s
}
