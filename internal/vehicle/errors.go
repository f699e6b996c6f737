package vehicle

import "errors"

var ErrInvalidConfig = errors.New("invalid vehicle config")
