package domain

import "errors"

// Pipeline failure classes. Callers wrap these with fmt.Errorf("%w: ...") and
// classify with errors.Is.
var (
	// ErrInvalidGeometry reports malformed client coordinates or buffer.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrNoImageFound reports that every catalog entry was exhausted without
	// a matching image.
	ErrNoImageFound = errors.New("no image found for region")

	// ErrBandResolution reports an image whose band layout is not recognised.
	ErrBandResolution = errors.New("band resolution failed")

	// ErrRender reports any failure of the remote imagery service.
	ErrRender = errors.New("render failed")
)
