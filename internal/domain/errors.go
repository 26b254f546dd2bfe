package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyStarted = errors.New("recognition already started")
	ErrUnsupported    = errors.New("capability not supported")
	ErrNoSteps        = errors.New("recipe has no steps")
)
