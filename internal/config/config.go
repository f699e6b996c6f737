// Package config loads the JSON settings file shared by the desktop app,
// the CLI and the HTTP server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MJE43/dragstrip/internal/bot"
	"github.com/MJE43/dragstrip/internal/garage"
	"github.com/MJE43/dragstrip/internal/pilot"
	"github.com/MJE43/dragstrip/internal/race"
)

const (
	AppDirName = "dragstrip"
	FileName   = "config.json"
	DBName     = "dragstrip.db"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds every setting. Zero values in a loaded file are filled from
// Default.
type Config struct {
	DataDir string `json:"data_dir"`
	DBName  string `json:"db_name"`

	HTTPAddr       string `json:"http_addr"`
	RequireToken   bool   `json:"require_token"`
	TokenName      string `json:"token_name"`
	KeyringService string `json:"keyring_service"`

	StepMs  float64 `json:"step_ms"`
	Workers int     `json:"workers"`

	Player   garage.Selection `json:"player"`
	Opponent garage.Selection `json:"opponent"`
	Race     race.Config      `json:"race"`
	Bot      bot.Config       `json:"bot"`
	Pilot    pilot.Config     `json:"pilot"`
}

func Default() Config {
	return Config{
		DataDir:        AppDataDir(),
		DBName:         DBName,
		HTTPAddr:       "127.0.0.1:17890",
		TokenName:      "server",
		KeyringService: "dragstrip",
		StepMs:         1000.0 / 60,
		Player:         garage.Selection{Model: "beater_car", Stage: 1, Tuning: "stock"},
		Opponent:       garage.Selection{Model: "beater_car", Stage: 1, Tuning: "stock"},
		Race:           race.DefaultConfig(),
		Bot:            bot.DefaultConfig(),
		Pilot:          pilot.DefaultConfig(),
	}
}

// AppDataDir returns an OS-appropriate writable directory.
func AppDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, AppDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+AppDirName)
	}
	return "."
}

// DefaultPath is the settings file inside AppDataDir.
func DefaultPath() string {
	return filepath.Join(AppDataDir(), FileName)
}

// Load reads path. A missing file yields Default without error.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg as indented JSON, creating the directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// fill restores defaults for fields a file left empty.
func (c *Config) fill() {
	d := Default()
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = d.DataDir
	}
	if c.DBName == "" {
		c.DBName = d.DBName
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = d.HTTPAddr
	}
	if c.TokenName == "" {
		c.TokenName = d.TokenName
	}
	if c.KeyringService == "" {
		c.KeyringService = d.KeyringService
	}
	if c.StepMs == 0 {
		c.StepMs = d.StepMs
	}
}

func (c Config) Validate() error {
	if c.StepMs <= 0 || c.StepMs > 100 {
		return fmt.Errorf("%w: step_ms %v", ErrInvalid, c.StepMs)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d", ErrInvalid, c.Workers)
	}
	if err := c.Race.Validate(); err != nil {
		return fmt.Errorf("%w: race: %v", ErrInvalid, err)
	}
	if err := c.Bot.Validate(); err != nil {
		return fmt.Errorf("%w: bot: %v", ErrInvalid, err)
	}
	if _, err := garage.Build(c.Player); err != nil {
		return fmt.Errorf("%w: player: %v", ErrInvalid, err)
	}
	if _, err := garage.Build(c.Opponent); err != nil {
		return fmt.Errorf("%w: opponent: %v", ErrInvalid, err)
	}
	return nil
}

// DBPath is where the history database lives. ":memory:" passes through.
func (c Config) DBPath() string {
	if c.DBName == ":memory:" || filepath.IsAbs(c.DBName) {
		return c.DBName
	}
	return filepath.Join(c.DataDir, c.DBName)
}

// TokenFallbackPath is the file used when no OS keyring is available.
func (c Config) TokenFallbackPath() string {
	return filepath.Join(c.DataDir, "tokens.json")
}

// Setup assembles the race setup for the configured cars.
func (c Config) Setup() (race.Setup, error) {
	player, err := garage.Build(c.Player)
	if err != nil {
		return race.Setup{}, fmt.Errorf("player: %w", err)
	}
	opponent, err := garage.Build(c.Opponent)
	if err != nil {
		return race.Setup{}, fmt.Errorf("opponent: %w", err)
	}
	b := c.Bot
	b.TrackLength = c.Race.TrackLength
	return race.Setup{Race: c.Race, Player: player, Opponent: opponent, Bot: b}, nil
}
