package store

import (
	"errors"
	"fmt"
	"math"
)

// MaxHeat is the largest heat SQLite can hold in an INTEGER column.
const MaxHeat uint64 = math.MaxInt64

var (
	ErrRaceNotFound   = errors.New("race not found")
	ErrRunNotFound    = errors.New("run not found")
	ErrHeatOutOfRange = errors.New("heat out of range")
)

func checkHeat(heats ...uint64) error {
	for _, h := range heats {
		if h > MaxHeat {
			return fmt.Errorf("%w: %d > %d", ErrHeatOutOfRange, h, MaxHeat)
		}
	}
	return nil
}
