package race

import (
	"fmt"

	"github.com/MJE43/dragstrip/internal/skill"
)

// Config describes one race. Times are milliseconds.
type Config struct {
	TrackLength         float64 `json:"track_length"`
	CountdownFrom       int     `json:"countdown_from"`
	CountdownIntervalMs float64 `json:"countdown_interval_ms"`
	DNFTimeoutMs        float64 `json:"dnf_timeout_ms"`
	MaxRaceMs           float64 `json:"max_race_ms"`

	// NitrousCheck routes the player's nitrous through the minigame.
	NitrousCheck bool `json:"nitrous_check"`
	// OpponentDisabled runs the player alone, as in the tutorial.
	OpponentDisabled bool `json:"opponent_disabled"`

	Start skill.StartConfig `json:"start"`
	Check skill.CheckConfig `json:"check"`
}

func DefaultConfig() Config {
	return Config{
		TrackLength:         1000,
		CountdownFrom:       3,
		CountdownIntervalMs: 1000,
		DNFTimeoutMs:        7000,
		MaxRaceMs:           120000,
		NitrousCheck:        true,
		Start:               skill.DefaultStartConfig(),
		Check:               skill.DefaultCheckConfig(),
	}
}

// TutorialConfig is the solo practice run on the long strip.
func TutorialConfig() Config {
	cfg := DefaultConfig()
	cfg.TrackLength = 1800
	cfg.OpponentDisabled = true
	return cfg
}

func (c Config) Validate() error {
	if c.TrackLength <= 0 {
		return fmt.Errorf("%w: track length %v", ErrInvalidConfig, c.TrackLength)
	}
	if c.CountdownFrom < 0 {
		return fmt.Errorf("%w: countdown %d", ErrInvalidConfig, c.CountdownFrom)
	}
	if c.CountdownFrom > 0 && c.CountdownIntervalMs <= 0 {
		return fmt.Errorf("%w: countdown interval %v", ErrInvalidConfig, c.CountdownIntervalMs)
	}
	if c.DNFTimeoutMs < 0 || c.MaxRaceMs < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}
