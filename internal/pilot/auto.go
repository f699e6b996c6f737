// Package pilot drives the player car without a human, for headless races,
// sweeps and the CLI.
package pilot

import "github.com/MJE43/dragstrip/internal/race"

// Config tunes the automatic pilot.
type Config struct {
	ReactionMs      float64 `json:"reaction_ms"`
	ShiftRPM        float64 `json:"shift_rpm"`
	NitrousFraction float64 `json:"nitrous_fraction"`
	// AimMargin keeps minigame presses this far inside the zone edges so
	// the marker is still in the zone on the following frame.
	AimMargin  float64 `json:"aim_margin"`
	UseNitrous bool    `json:"use_nitrous"`
}

func DefaultConfig() Config {
	return Config{
		ReactionMs:      120,
		ShiftRPM:        8400,
		NitrousFraction: 0.5,
		AimMargin:       15,
		UseNitrous:      true,
	}
}

// Auto implements race.Pilot.
type Auto struct {
	cfg         Config
	nitrousDone bool
}

func NewAuto(cfg Config) *Auto {
	return &Auto{cfg: cfg}
}

func (a *Auto) Controls(v race.View) race.Controls {
	if v.Phase != race.PhaseRacing {
		a.nitrousDone = false
		return race.Controls{}
	}
	if v.Minigame.Open {
		return race.Controls{
			Throttle:      true,
			MinigamePress: v.Minigame.Marker >= v.Minigame.ZoneStart+a.cfg.AimMargin && v.Minigame.Marker <= v.Minigame.ZoneEnd-a.cfg.AimMargin,
		}
	}

	c := race.Controls{Throttle: v.RaceMs >= a.cfg.ReactionMs}
	if !c.Throttle {
		return c
	}
	p := v.Player
	if p.RPM >= a.cfg.ShiftRPM && p.Gear < p.MaxGear {
		c.ShiftUp = true
	}
	if a.cfg.UseNitrous && !a.nitrousDone && p.Distance >= v.TrackLength*a.cfg.NitrousFraction {
		c.Nitrous = true
		a.nitrousDone = true
	}
	return c
}

// Reset forgets per-race state.
func (a *Auto) Reset() { a.nitrousDone = false }
