// Package analysis holds the error taxonomy shared by the analysis
// components (trend, compare, strategy, change, recommend).
package analysis

import "errors"

var (
	// ErrInvalidArgument is returned for malformed input (non-positive
	// window, negative threshold). Always rejected before any store query.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoObservations is returned when the referenced competitor has no
	// observations at all in range. Distinct from a valid empty result.
	ErrNoObservations = errors.New("no observations for competitor in range")

	// ErrInsufficientData is returned when data exists but is not enough to
	// classify. Callers should render "unknown" rather than fail.
	ErrInsufficientData = errors.New("insufficient data to classify")
)
