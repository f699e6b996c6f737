package sweep

import "errors"

var (
	ErrMetricNotFound = errors.New("metric not found")
	ErrInvalidRange   = errors.New("invalid heat range")
	ErrInvalidTarget  = errors.New("invalid target operator")
	ErrInvalidScript  = errors.New("invalid pilot script")
	ErrNoRaceLimit    = errors.New("headless races need a race time limit")
)
