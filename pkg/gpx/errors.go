package gpx

import "errors"

// Common errors returned by the GPX parser.
var (
	ErrEmptyRoute        = errors.New("gpx: no track points or route points found")
	ErrMissingCoordinate = errors.New("gpx: point is missing a lat or lon attribute")
	ErrCoordinateRange   = errors.New("gpx: coordinate out of range")
)
