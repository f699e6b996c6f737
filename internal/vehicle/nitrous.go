package vehicle

import "github.com/MJE43/dragstrip/internal/sched"

// NitrousStatus is the HUD-facing state of the nitrous system.
type NitrousStatus string

const (
	NitrousReady    NitrousStatus = "ready"
	NitrousActive   NitrousStatus = "active"
	NitrousCooldown NitrousStatus = "cooldown"
)

// Nitrous is a timed boost. While active, a race-clock event that ends the
// boost is always pending in the scheduler.
type Nitrous struct {
	cfg      NitrousConfig
	sched    *sched.Scheduler
	active   bool
	cooldown float64
	endID    sched.ID
	uses     int
}

func NewNitrous(cfg NitrousConfig, s *sched.Scheduler) *Nitrous {
	return &Nitrous{cfg: cfg, sched: s}
}

// RequestActivate starts the boost at race time now. It fails without
// changing anything when the boost is already active or cooling down.
func (n *Nitrous) RequestActivate(now float64) bool {
	if n.active || n.cooldown > 0 {
		return false
	}
	n.active = true
	n.cooldown = n.cfg.DurationMs + n.cfg.CooldownMs
	n.uses++
	n.endID = n.sched.At(sched.Race, now+n.cfg.DurationMs, "nitrous_end", func(float64) {
		n.active = false
		n.endID = 0
	})
	return true
}

// ApplyFallbackCooldown puts the system on its short cooldown without
// boosting. Used when the activation check is failed.
func (n *Nitrous) ApplyFallbackCooldown() {
	if n.active {
		return
	}
	if n.cfg.FallbackCooldownMs > n.cooldown {
		n.cooldown = n.cfg.FallbackCooldownMs
	}
}

// Tick decays the cooldown by deltaMs.
func (n *Nitrous) Tick(deltaMs float64) {
	if n.cooldown <= 0 {
		return
	}
	n.cooldown -= deltaMs
	if n.cooldown < 0 {
		n.cooldown = 0
	}
}

func (n *Nitrous) Active() bool               { return n.active }
func (n *Nitrous) CooldownRemaining() float64 { return n.cooldown }
func (n *Nitrous) Boost() float64             { return n.cfg.Boost }
func (n *Nitrous) Uses() int                  { return n.uses }

func (n *Nitrous) Status() NitrousStatus {
	switch {
	case n.active:
		return NitrousActive
	case n.cooldown > 0:
		return NitrousCooldown
	default:
		return NitrousReady
	}
}

// Stop ends the boost and clears the cooldown without touching the use
// count. A finished race calls it because its race clock no longer runs.
func (n *Nitrous) Stop() {
	if n.endID != 0 {
		n.sched.Cancel(n.endID)
		n.endID = 0
	}
	n.active = false
	n.cooldown = 0
}

// Reset cancels the pending end event and clears all state.
func (n *Nitrous) Reset() {
	if n.endID != 0 {
		n.sched.Cancel(n.endID)
		n.endID = 0
	}
	n.active = false
	n.cooldown = 0
	n.uses = 0
}
