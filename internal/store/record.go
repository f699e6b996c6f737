package store

import (
	"encoding/json"
	"fmt"

	"github.com/MJE43/dragstrip/internal/race"
	"github.com/MJE43/dragstrip/internal/vehicle"
)

// RaceMeta identifies how a race was set up.
type RaceMeta struct {
	SeedFingerprint string
	Heat            uint64
	PlayerCar       string
	OpponentCar     string
	OpponentSkill   float64
}

// RecordFromResults flattens race results into a history row.
func RecordFromResults(res *race.Results, meta RaceMeta) (*RaceRecord, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}
	rec := &RaceRecord{
		SeedFingerprint: meta.SeedFingerprint,
		Heat:            meta.Heat,
		PlayerCar:       meta.PlayerCar,
		OpponentCar:     meta.OpponentCar,
		OpponentSkill:   meta.OpponentSkill,
		TrackLength:     res.TrackLength,
		Outcome:         string(res.Outcome),
		PlayerStatus:    res.Player.Finish.Status.String(),
		PlayerMs:        realMs(res.Player.Finish),
		Launch:          string(res.Launch),
		ResultsJSON:     string(raw),
	}
	if res.Opponent != nil {
		rec.OpponentStatus = res.Opponent.Finish.Status.String()
		rec.OpponentMs = realMs(res.Opponent.Finish)
	}
	return rec, nil
}

// Results decodes the stored results summary.
func (r *RaceRecord) Results() (*race.Results, error) {
	var res race.Results
	if err := json.Unmarshal([]byte(r.ResultsJSON), &res); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return &res, nil
}

func realMs(f vehicle.FinishTime) *float64 {
	if !f.Real() {
		return nil
	}
	ms := f.Ms
	return &ms
}
