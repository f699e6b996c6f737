package scripting

import (
	"fmt"
	"log"
	"sync"

	"github.com/MJE43/dragstrip/internal/race"
)

// Pilot is a race.Pilot backed by a script. A script error disables the
// pilot for the rest of the race; it then lifts off every control.
type Pilot struct {
	vm     *VM
	logger *log.Logger

	mu  sync.Mutex
	err error
}

// NewPilot compiles source and checks that it defines drive().
func NewPilot(source string, logger *log.Logger) (*Pilot, error) {
	vm := NewVM()
	if err := vm.Execute(source); err != nil {
		return nil, err
	}
	if !vm.HasDrive() {
		return nil, ErrNoDrive
	}
	return &Pilot{vm: vm, logger: logger}, nil
}

func (p *Pilot) Controls(v race.View) race.Controls {
	if p.Err() != nil || p.vm.IsStopRequested() {
		return race.Controls{}
	}
	out, err := p.vm.CallDrive(stateOf(v))
	if err != nil {
		p.fail(err)
		return race.Controls{}
	}
	return controlsOf(out)
}

func (p *Pilot) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
		if p.logger != nil {
			p.logger.Printf("script_error err=%v", err)
		}
	}
}

// Err returns the first script error, if any.
func (p *Pilot) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Logs returns what the script printed.
func (p *Pilot) Logs() []LogEntry { return p.vm.GetLogs() }

// Reset prepares the pilot for a new race.
func (p *Pilot) Reset() {
	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()
	p.vm.ClearStopRequest()
	p.vm.ClearLogs()
}

func stateOf(v race.View) map[string]any {
	state := map[string]any{
		"phase":        string(v.Phase),
		"countdown":    v.Countdown,
		"race_ms":      v.RaceMs,
		"track_length": v.TrackLength,
		"redline":      v.RedlineRPM,
		"launch":       string(v.Launch),
		"speed":        v.Player.Speed,
		"rpm":          v.Player.RPM,
		"gear":         v.Player.Gear,
		"max_gear":     v.Player.MaxGear,
		"distance":     v.Player.Distance,
		"nitrous":      string(v.Player.Nitrous),
		"minigame": map[string]any{
			"open":       v.Minigame.Open,
			"marker":     v.Minigame.Marker,
			"zone_start": v.Minigame.ZoneStart,
			"zone_end":   v.Minigame.ZoneEnd,
		},
	}
	if v.Opponent != nil {
		state["opponent_distance"] = v.Opponent.Distance
		state["opponent_speed"] = v.Opponent.Speed
	}
	return state
}

func controlsOf(out map[string]any) race.Controls {
	return race.Controls{
		Throttle:      truthy(out["throttle"]),
		ShiftUp:       truthy(out["shift_up"]),
		ShiftDown:     truthy(out["shift_down"]),
		Nitrous:       truthy(out["nitrous"]),
		MinigamePress: truthy(out["press"]),
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return fmt.Sprint(t) != ""
	}
}
