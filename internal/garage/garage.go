// Package garage is the catalogue of cars, upgrade stages and nitrous
// tunings, and turns a selection into a vehicle.Config.
package garage

import (
	"fmt"
	"sort"

	"github.com/MJE43/dragstrip/internal/vehicle"
)

// Model is a car body in the catalogue.
type Model struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	BaseMaxSpeed float64   `json:"base_max_speed"`
	Ratios       []float64 `json:"ratios"`
}

// Stage is an engine upgrade level.
type Stage struct {
	Level          int     `json:"level"`
	TorqueConstant float64 `json:"torque_constant"`
	PowerFactor    float64 `json:"power_factor"`
	// AdvertisedZeroToHundred is the brochure 0-100 time in seconds.
	AdvertisedZeroToHundred float64 `json:"advertised_zero_to_hundred"`
}

// Tuning is a nitrous jet setting trading duration for boost.
type Tuning struct {
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	DurationMs float64 `json:"duration_ms"`
	Boost      float64 `json:"boost"`
}

// Selection names a car, a stage and a tuning.
type Selection struct {
	Model  string `json:"model"`
	Stage  int    `json:"stage"`
	Tuning string `json:"tuning"`
}

var stockRatios = []float64{0, 2.47, 1.85, 1.49, 1.24, 1.12, 1.04}

// ModelRegistry holds all available cars.
var ModelRegistry = make(map[string]Model)

var stages = []Stage{
	{Level: 1, TorqueConstant: 15, PowerFactor: 0.6, AdvertisedZeroToHundred: 7},
	{Level: 2, TorqueConstant: 18, PowerFactor: 0.8, AdvertisedZeroToHundred: 4},
	{Level: 3, TorqueConstant: 22, PowerFactor: 1.0, AdvertisedZeroToHundred: 2.5},
}

var tunings = map[string]Tuning{
	"stock":    {Key: "stock", Label: "3s", DurationMs: 3000, Boost: 1.8},
	"long":     {Key: "long", Label: "7.5s", DurationMs: 7500, Boost: 1.5},
	"balanced": {Key: "balanced", Label: "5s", DurationMs: 5000, Boost: 2.0},
	"short":    {Key: "short", Label: "2.5s", DurationMs: 2500, Boost: 2.5},
}

// RegisterModel adds a car to the catalogue.
func RegisterModel(m Model) {
	ModelRegistry[m.Key] = m
}

// GetModel retrieves a car by key.
func GetModel(key string) (Model, bool) {
	m, ok := ModelRegistry[key]
	return m, ok
}

// ListModels returns all cars sorted by key.
func ListModels() []Model {
	out := make([]Model, 0, len(ModelRegistry))
	for _, m := range ModelRegistry {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// GetStage returns an upgrade stage, 1 through 3.
func GetStage(level int) (Stage, bool) {
	if level < 1 || level > len(stages) {
		return Stage{}, false
	}
	return stages[level-1], true
}

func ListStages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

func GetTuning(key string) (Tuning, bool) {
	t, ok := tunings[key]
	return t, ok
}

// ListTunings returns the tunings from longest to shortest burn.
func ListTunings() []Tuning {
	out := make([]Tuning, 0, len(tunings))
	for _, t := range tunings {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DurationMs > out[j].DurationMs })
	return out
}

// Build resolves a selection into a vehicle config. Empty fields fall back
// to the beater car, stage 1 and the stock tuning.
func Build(sel Selection) (vehicle.Config, error) {
	if sel.Model == "" {
		sel.Model = "beater_car"
	}
	if sel.Stage == 0 {
		sel.Stage = 1
	}
	if sel.Tuning == "" {
		sel.Tuning = "stock"
	}

	m, ok := GetModel(sel.Model)
	if !ok {
		return vehicle.Config{}, fmt.Errorf("%w: %s", ErrModelNotFound, sel.Model)
	}
	st, ok := GetStage(sel.Stage)
	if !ok {
		return vehicle.Config{}, fmt.Errorf("%w: %d", ErrStageNotFound, sel.Stage)
	}
	tu, ok := GetTuning(sel.Tuning)
	if !ok {
		return vehicle.Config{}, fmt.Errorf("%w: %s", ErrTuningNotFound, sel.Tuning)
	}

	cfg := vehicle.DefaultConfig()
	cfg.Name = fmt.Sprintf("%s/stage%d/%s", m.Key, st.Level, tu.Key)
	cfg.Ratios = append([]float64(nil), m.Ratios...)
	cfg.BaseMaxSpeed = m.BaseMaxSpeed
	cfg.TorqueConstant = st.TorqueConstant
	cfg.PowerFactor = st.PowerFactor
	cfg.Nitrous.DurationMs = tu.DurationMs
	cfg.Nitrous.Boost = tu.Boost
	if err := cfg.Validate(); err != nil {
		return vehicle.Config{}, err
	}
	return cfg, nil
}

func init() {
	RegisterModel(Model{Key: "beater_car", Name: "Beater Car", BaseMaxSpeed: 280, Ratios: stockRatios})
	RegisterModel(Model{Key: "beater_jeep", Name: "Beater Jeep", BaseMaxSpeed: 280, Ratios: stockRatios})
	RegisterModel(Model{Key: "gt40", Name: "GT40", BaseMaxSpeed: 290, Ratios: stockRatios})
}
