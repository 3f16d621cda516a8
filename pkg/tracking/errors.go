package tracking

import "errors"

// Sentinel errors for the tracking package
var (
	// ErrDetectorInit is returned when the landmarker could not be created.
	// Detection stays disabled; rendering continues with the last pose.
	ErrDetectorInit = errors.New("detector initialization failed")

	// ErrNoSource is returned when the sampler has no camera source.
	ErrNoSource = errors.New("no camera source")
)
