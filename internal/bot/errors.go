package bot

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid bot config")
	ErrMissingDependency = errors.New("bot needs a vehicle and a random source")
)
