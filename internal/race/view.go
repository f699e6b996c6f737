package race

import (
	"github.com/MJE43/dragstrip/internal/skill"
	"github.com/MJE43/dragstrip/internal/vehicle"
)

// View is a per-frame snapshot for renderers and pilots.
type View struct {
	Phase       Phase             `json:"phase"`
	Countdown   int               `json:"countdown"`
	FrameMs     float64           `json:"frame_ms"`
	RaceMs      float64           `json:"race_ms"`
	Paused      bool              `json:"paused"`
	Suspended   bool              `json:"suspended"`
	TrackLength float64           `json:"track_length"`
	Player      vehicle.Snapshot  `json:"player"`
	Opponent    *vehicle.Snapshot `json:"opponent,omitempty"`
	Launch      skill.StartResult `json:"launch"`
	Minigame    skill.CheckView   `json:"minigame"`
	Outcome     Outcome           `json:"outcome"`
	RedlineRPM  float64           `json:"redline_rpm"`
}

func (r *Race) View() View {
	v := View{
		Phase:       r.phase,
		Countdown:   r.countdown,
		FrameMs:     r.frameNow,
		RaceMs:      r.elapsed(),
		Paused:      r.userPaused,
		Suspended:   r.suspended,
		TrackLength: r.cfg.TrackLength,
		Player:      r.player.vehicle.Snapshot(),
		Launch:      r.judge.Result(),
		Minigame:    r.check.View(),
		Outcome:     r.outcome,
		RedlineRPM:  r.player.vehicle.Config().RedlineRPM,
	}
	if r.driver != nil {
		s := r.opponent.vehicle.Snapshot()
		v.Opponent = &s
	}
	return v
}
