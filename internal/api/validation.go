package api

import (
	"fmt"
	"math"
	"strings"

	"github.com/MJE43/dragstrip/internal/garage"
	"github.com/MJE43/dragstrip/internal/race"
	"github.com/MJE43/dragstrip/internal/sweep"
)

const (
	maxScriptBytes = 64 << 10
	maxStepMs      = 100
)

// fieldError names the request field that failed validation.
type fieldError struct {
	field   string
	message string
}

func (e fieldError) Error() string { return e.message }

func invalid(field, format string, args ...any) error {
	return fieldError{field: field, message: fmt.Sprintf(format, args...)}
}

func validateSelection(field string, sel garage.Selection) error {
	if sel.Model != "" {
		if _, ok := garage.GetModel(sel.Model); !ok {
			return invalid(field+".model", "unknown model '%s'", sel.Model)
		}
	}
	if sel.Stage != 0 {
		if _, ok := garage.GetStage(sel.Stage); !ok {
			return invalid(field+".stage", "unknown stage %d", sel.Stage)
		}
	}
	if sel.Tuning != "" {
		if _, ok := garage.GetTuning(sel.Tuning); !ok {
			return invalid(field+".tuning", "unknown tuning '%s'", sel.Tuning)
		}
	}
	return nil
}

func validateCommon(seed string, player, opponent garage.Selection, skill *float64, stepMs float64, script string) error {
	if strings.TrimSpace(seed) == "" {
		return invalid("seed", "seed is required")
	}
	if err := validateSelection("player", player); err != nil {
		return err
	}
	if err := validateSelection("opponent", opponent); err != nil {
		return err
	}
	if skill != nil && (math.IsNaN(*skill) || *skill < 0 || *skill > 1) {
		return invalid("skill", "skill must be within [0, 1]")
	}
	if math.IsNaN(stepMs) || stepMs < 0 || stepMs > maxStepMs {
		return invalid("step_ms", "step_ms must be within (0, %d]", maxStepMs)
	}
	if len(script) > maxScriptBytes {
		return invalid("script", "script larger than %d bytes", maxScriptBytes)
	}
	return nil
}

// ValidateSimulateRequest checks a single race request.
func ValidateSimulateRequest(req *SimulateRequest) error {
	if err := validateCommon(req.Seed, req.Player, req.Opponent, req.Skill, req.StepMs, req.Script); err != nil {
		return err
	}
	if req.Heat > sweep.MaxHeat {
		return invalid("heat", "heat must be <= %d", sweep.MaxHeat)
	}
	return nil
}

// ValidateSweepRequest checks a sweep request.
func ValidateSweepRequest(req *sweep.Request) error {
	if err := validateCommon(req.Seed, req.Player, req.Opponent, req.Skill, req.StepMs, req.Script); err != nil {
		return err
	}
	if req.HeatEnd < req.HeatStart {
		return invalid("heat_end", "heat_end (%d) must be >= heat_start (%d)", req.HeatEnd, req.HeatStart)
	}
	if req.HeatEnd > sweep.MaxHeat {
		return invalid("heat_end", "heat_end must be <= %d", sweep.MaxHeat)
	}
	if req.HeatEnd-req.HeatStart >= sweep.MaxHeats {
		return invalid("heat_end", "heat range too large (max %d heats)", sweep.MaxHeats)
	}
	if req.Metric == "" {
		return invalid("metric", "metric is required")
	}
	if _, ok := sweep.GetMetric(req.Metric); !ok {
		return invalid("metric", "metric '%s' not found", req.Metric)
	}
	if !req.TargetOp.Valid() {
		return invalid("target_op", "target_op must be one of: eq, gt, ge, lt, le, between, outside")
	}
	if (req.TargetOp == sweep.OpBetween || req.TargetOp == sweep.OpOutside) && req.TargetVal2 < req.TargetVal {
		return invalid("target_val2", "target_val2 must be >= target_val for %s", req.TargetOp)
	}
	if req.Limit < 0 || req.TimeoutMs < 0 {
		return invalid("limit", "limit and timeout_ms must not be negative")
	}
	if req.Race != nil {
		if err := req.Race.Validate(); err != nil {
			return invalid("race", "%v", err)
		}
		if req.Race.MaxRaceMs <= 0 {
			return invalid("race.max_race_ms", "max_race_ms must be > 0 for sweeps")
		}
	}
	return nil
}

func (req *SimulateRequest) sweepRequest() sweep.Request {
	out := sweep.Request{
		Seed:     req.Seed,
		Player:   req.Player,
		Opponent: req.Opponent,
		Skill:    req.Skill,
		Pilot:    req.Pilot,
		Script:   req.Script,
		StepMs:   req.StepMs,
	}
	if req.Tutorial {
		cfg := race.TutorialConfig()
		out.Race = &cfg
	}
	return out
}
