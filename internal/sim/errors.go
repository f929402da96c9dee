package sim

import "errors"

// Errors surfaced synchronously by the session control surface. Device push
// failures are never returned here; they only show up in snapshots.
var (
	ErrAlreadyRunning  = errors.New("simulation is already running")
	ErrNotRunning      = errors.New("no simulation is currently running")
	ErrNoDevices       = errors.New("no devices available for simulation")
	ErrNoRoute         = errors.New("route with at least one point is required")
	ErrInvalidSpeed    = errors.New("speed multiplier must be positive")
	ErrInvalidDuration = errors.New("target duration must be positive")
)
