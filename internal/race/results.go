package race

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/dragstrip/internal/skill"
	"github.com/MJE43/dragstrip/internal/vehicle"
)

// Outcome is the verdict of a finished race.
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomePlayerWin   Outcome = "player_win"
	OutcomeOpponentWin Outcome = "opponent_win"
	OutcomeDraw        Outcome = "draw"
	OutcomeBothDNF     Outcome = "both_dnf"
)

// Decide ranks two finishes. A real time beats DNF and the smaller real time
// wins. Equal times go to the car further past the line on the crossing tick;
// if that is equal too the race is a draw.
func Decide(player, opponent vehicle.FinishTime, playerOvershoot, opponentOvershoot float64) Outcome {
	switch {
	case !player.Real() && !opponent.Real():
		return OutcomeBothDNF
	case player.Before(opponent):
		return OutcomePlayerWin
	case opponent.Before(player):
		return OutcomeOpponentWin
	case playerOvershoot > opponentOvershoot:
		return OutcomePlayerWin
	case opponentOvershoot > playerOvershoot:
		return OutcomeOpponentWin
	default:
		return OutcomeDraw
	}
}

// LaneResult summarises one car.
type LaneResult struct {
	Finish              vehicle.FinishTime `json:"finish"`
	Time                string             `json:"time"`
	TopSpeed            float64            `json:"top_speed"`
	ZeroToHundredMs     *float64           `json:"zero_to_hundred_ms,omitempty"`
	ZeroToHundred       string             `json:"zero_to_hundred"`
	ShiftCount          int                `json:"shift_count"`
	PerfectShiftCount   int                `json:"perfect_shift_count"`
	PerfectShiftPercent string             `json:"perfect_shift_percent"`
	Overshoot           float64            `json:"overshoot"`
}

// Results is the end-of-race summary.
type Results struct {
	Outcome          Outcome           `json:"outcome"`
	TrackLength      float64           `json:"track_length"`
	Player           LaneResult        `json:"player"`
	Opponent         *LaneResult       `json:"opponent,omitempty"`
	Launch           skill.StartResult `json:"launch"`
	ReactionMs       float64           `json:"reaction_ms"`
	NitrousChecks    int               `json:"nitrous_checks"`
	NitrousSuccesses int               `json:"nitrous_successes"`
	// MarginMs is how far ahead the winner was, when both set real times.
	MarginMs *float64 `json:"margin_ms,omitempty"`
}

// PlayerWon reports whether the player took the win.
func (r *Results) PlayerWon() bool { return r.Outcome == OutcomePlayerWin }

func laneResult(v *vehicle.Vehicle, overshoot float64) LaneResult {
	s := v.Snapshot()
	lr := LaneResult{
		Finish:              s.Finish,
		Time:                FormatTime(s.Finish),
		TopSpeed:            s.TopSpeed,
		ZeroToHundredMs:     s.ZeroToHundredMs,
		ZeroToHundred:       "-",
		ShiftCount:          s.ShiftCount,
		PerfectShiftCount:   s.PerfectShiftCount,
		PerfectShiftPercent: Percent(s.PerfectShiftCount, s.ShiftCount),
		Overshoot:           overshoot,
	}
	if s.ZeroToHundredMs != nil {
		lr.ZeroToHundred = Seconds(*s.ZeroToHundredMs)
	}
	return lr
}

// FormatTime renders a finish time in seconds with two decimals, or DNF.
func FormatTime(f vehicle.FinishTime) string {
	switch {
	case f.Real():
		return Seconds(f.Ms)
	case f.Status == vehicle.DNF:
		return "DNF"
	default:
		return "-"
	}
}

// Seconds renders milliseconds as seconds with two decimals.
func Seconds(ms float64) string {
	return decimal.NewFromFloat(ms).Div(decimal.NewFromInt(1000)).StringFixed(2)
}

// Percent renders part/whole as a percentage with one decimal.
func Percent(part, whole int) string {
	if whole <= 0 {
		return "0.0"
	}
	return decimal.NewFromInt(int64(part)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(whole))).StringFixed(1)
}
