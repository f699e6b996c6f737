package scripting

import "errors"

var (
	ErrNoDrive     = errors.New("drive() function is not defined")
	ErrBadControls = errors.New("drive() must return an object")
	ErrTimeout     = errors.New("script timed out")
)
