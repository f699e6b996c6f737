package race

import (
	"context"
	"fmt"

	"github.com/MJE43/dragstrip/internal/bot"
	"github.com/MJE43/dragstrip/internal/sched"
	"github.com/MJE43/dragstrip/internal/vehicle"
)

// Pilot produces the player's controls from the current view.
type Pilot interface {
	Controls(v View) Controls
}

// PilotFunc adapts a function to Pilot.
type PilotFunc func(v View) Controls

func (f PilotFunc) Controls(v View) Controls { return f(v) }

// Setup bundles everything Build needs for a standard player-versus-bot race.
type Setup struct {
	Race     Config
	Player   vehicle.Config
	Opponent vehicle.Config
	Bot      bot.Config
}

// Build creates a scheduler, both vehicles, the bot and the race.
func Build(setup Setup, rng bot.Rand, opts ...Option) (*Race, error) {
	s := sched.New()
	player, err := vehicle.New(setup.Player, s)
	if err != nil {
		return nil, fmt.Errorf("player vehicle: %w", err)
	}

	var opponent Opponent
	if !setup.Race.OpponentDisabled {
		ov, err := vehicle.New(setup.Opponent, s)
		if err != nil {
			return nil, fmt.Errorf("opponent vehicle: %w", err)
		}
		botCfg := setup.Bot
		if botCfg.TrackLength <= 0 {
			botCfg.TrackLength = setup.Race.TrackLength
		}
		d, err := bot.New(botCfg, ov, rng)
		if err != nil {
			return nil, fmt.Errorf("opponent driver: %w", err)
		}
		opponent = d
	}
	return New(setup.Race, s, player, opponent, opts...)
}

// Run drives a race headlessly with fixed frame steps until it finishes.
// It starts the race if it is idle, resetting a pilot that has a Reset
// method first.
func Run(ctx context.Context, r *Race, p Pilot, stepMs float64, maxFrames int) (*Results, error) {
	if stepMs <= 0 {
		return nil, fmt.Errorf("%w: step %v", ErrInvalidConfig, stepMs)
	}
	if r.Phase() == PhaseIdle {
		if rp, ok := p.(interface{ Reset() }); ok {
			rp.Reset()
		}
		if err := r.Start(); err != nil {
			return nil, err
		}
	}
	for frame := 0; maxFrames <= 0 || frame < maxFrames; frame++ {
		if frame%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		r.Update(stepMs, p.Controls(r.View()))
		if res, ok := r.Results(); ok {
			return res, nil
		}
	}
	return nil, ErrFrameBudget
}
