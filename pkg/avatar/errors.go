package avatar

import (
	"errors"
	"fmt"
)

// Sentinel errors for avatar loading.
var (
	// ErrAssetLoad is wrapped by every load or decode failure.
	ErrAssetLoad = errors.New("avatar: asset load failed")

	// ErrEmptySource is returned for a source with neither URL nor data.
	ErrEmptySource = errors.New("avatar: empty source")

	// ErrSuperseded is returned by SetSync when a newer Set replaced the
	// request before it finished.
	ErrSuperseded = errors.New("avatar: load superseded by a newer request")
)

// LoadError describes a failed asset load. The previous avatar stays active.
type LoadError struct {
	Source string
	Err    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("avatar: load %s: %v", e.Source, e.Err)
}

// Unwrap returns the cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is reports ErrAssetLoad for every LoadError.
func (e *LoadError) Is(target error) bool {
	return target == ErrAssetLoad
}
