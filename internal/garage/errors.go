package garage

import "errors"

var (
	ErrModelNotFound  = errors.New("model not found")
	ErrStageNotFound  = errors.New("upgrade stage not found")
	ErrTuningNotFound = errors.New("nitrous tuning not found")
)
