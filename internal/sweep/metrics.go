package sweep

import (
	"sort"

	"github.com/MJE43/dragstrip/internal/race"
)

// Metric extracts one number from a finished race. ok is false when the
// race has no value for it, such as a finish time after a DNF.
type Metric struct {
	Key         string
	Description string
	Extract     func(res *race.Results) (value float64, ok bool)
}

// MetricRegistry holds every metric a sweep can filter on.
var MetricRegistry = make(map[string]Metric)

// RegisterMetric adds a metric to the registry.
func RegisterMetric(m Metric) {
	MetricRegistry[m.Key] = m
}

// GetMetric looks up a metric by key.
func GetMetric(key string) (Metric, bool) {
	m, ok := MetricRegistry[key]
	return m, ok
}

// ListMetrics returns all metrics sorted by key.
func ListMetrics() []Metric {
	out := make([]Metric, 0, len(MetricRegistry))
	for _, m := range MetricRegistry {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func init() {
	RegisterMetric(Metric{
		Key:         "player_time",
		Description: "Player finish time in ms",
		Extract: func(res *race.Results) (float64, bool) {
			return res.Player.Finish.Ms, res.Player.Finish.Real()
		},
	})
	RegisterMetric(Metric{
		Key:         "opponent_time",
		Description: "Opponent finish time in ms",
		Extract: func(res *race.Results) (float64, bool) {
			if res.Opponent == nil {
				return 0, false
			}
			return res.Opponent.Finish.Ms, res.Opponent.Finish.Real()
		},
	})
	RegisterMetric(Metric{
		Key:         "margin",
		Description: "Opponent time minus player time in ms, positive when the player is ahead",
		Extract: func(res *race.Results) (float64, bool) {
			if res.Opponent == nil || !res.Player.Finish.Real() || !res.Opponent.Finish.Real() {
				return 0, false
			}
			return res.Opponent.Finish.Ms - res.Player.Finish.Ms, true
		},
	})
	RegisterMetric(Metric{
		Key:         "player_win",
		Description: "1 when the player won, otherwise 0",
		Extract: func(res *race.Results) (float64, bool) {
			if res.PlayerWon() {
				return 1, true
			}
			return 0, true
		},
	})
	RegisterMetric(Metric{
		Key:         "top_speed",
		Description: "Player top speed",
		Extract: func(res *race.Results) (float64, bool) {
			return res.Player.TopSpeed, true
		},
	})
	RegisterMetric(Metric{
		Key:         "zero_to_hundred",
		Description: "Player 0-100 time in ms",
		Extract: func(res *race.Results) (float64, bool) {
			if res.Player.ZeroToHundredMs == nil {
				return 0, false
			}
			return *res.Player.ZeroToHundredMs, true
		},
	})
	RegisterMetric(Metric{
		Key:         "opponent_perfect_shifts",
		Description: "Opponent perfect shift count",
		Extract: func(res *race.Results) (float64, bool) {
			if res.Opponent == nil {
				return 0, false
			}
			return float64(res.Opponent.PerfectShiftCount), true
		},
	})
}
