package race

import "errors"

var (
	ErrInvalidConfig  = errors.New("invalid race config")
	ErrAlreadyStarted = errors.New("race already started")
	ErrFrameBudget    = errors.New("race did not finish within the frame budget")
	ErrMissingVehicle = errors.New("race needs a player vehicle")
)
