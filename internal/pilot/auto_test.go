package pilot

import (
	"context"
	"testing"

	"github.com/MJE43/dragstrip/internal/engine"
	"github.com/MJE43/dragstrip/internal/race"
	"github.com/MJE43/dragstrip/internal/skill"
	"github.com/MJE43/dragstrip/internal/vehicle"
)

func TestAutoHoldsDuringCountdown(t *testing.T) {
	a := NewAuto(DefaultConfig())
	if c := a.Controls(race.View{Phase: race.PhaseCountdown}); c.Throttle {
		t.Fatalf("pilot jumped the start")
	}
	if c := a.Controls(race.View{Phase: race.PhaseRacing, RaceMs: 50}); c.Throttle {
		t.Fatalf("pilot reacted faster than its reaction time")
	}
	if c := a.Controls(race.View{Phase: race.PhaseRacing, RaceMs: 150}); !c.Throttle {
		t.Fatalf("pilot never launched")
	}
}

func TestAutoAimsMinigame(t *testing.T) {
	a := NewAuto(DefaultConfig())
	v := race.View{Phase: race.PhaseRacing, Minigame: skill.CheckView{Open: true, ZoneStart: 160, ZoneEnd: 240}}
	v.Minigame.Marker = 100
	if a.Controls(v).MinigamePress {
		t.Fatalf("pressed outside the zone")
	}
	v.Minigame.Marker = 200
	if !a.Controls(v).MinigamePress {
		t.Fatalf("did not press in the zone")
	}
}

func TestAutoWinsNitrousCheckInRace(t *testing.T) {
	setup := race.Setup{
		Race:     race.DefaultConfig(),
		Player:   vehicle.DefaultConfig(),
		Opponent: vehicle.DefaultConfig(),
	}
	setup.Bot.Skill = 0.7
	setup.Bot.ShiftVariance = 1000
	setup.Bot.ShiftFloorRPM = 7000
	setup.Bot.NitrousMinFraction = 0.4
	setup.Bot.NitrousMaxFraction = 0.7

	r, err := race.Build(setup, engine.NewStream("seed", "bot", 1, 0))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res, err := race.Run(context.Background(), r, NewAuto(DefaultConfig()), 16, 100000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.NitrousChecks != 1 || res.NitrousSuccesses != 1 {
		t.Fatalf("checks=%d successes=%d", res.NitrousChecks, res.NitrousSuccesses)
	}
	if res.Launch != skill.StartLate && res.Launch != skill.StartPerfect {
		t.Errorf("launch = %q", res.Launch)
	}
	if !res.Player.Finish.Real() {
		t.Errorf("player did not finish: %+v", res.Player)
	}
}
