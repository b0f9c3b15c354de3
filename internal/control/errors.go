package control

import "errors"

// Domain errors for controller operations.
var (
	// ErrInvalidInterval indicates a non-positive tick interval. This is a
	// configuration or programming error, fatal to the tick that saw it.
	ErrInvalidInterval = errors.New("control: invalid tick interval")

	// ErrInvalidGains indicates a gain set that is non-finite or negative.
	ErrInvalidGains = errors.New("control: invalid gains")
)
