package params

import "errors"

// ErrUnknownParam is returned when a parameter name does not resolve.
var ErrUnknownParam = errors.New("unknown parameter")
