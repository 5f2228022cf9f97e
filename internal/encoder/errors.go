package encoder

import (
	"errors"
	"fmt"
)

var (
	ErrTargetTooSmall = errors.New("target size too small")
	ErrUnknownFormat  = errors.New("unknown output format")
	ErrEmptyImage     = errors.New("empty image")
)

// TargetTooSmallError reports a PNG byte budget that would need a resize below
// the minimum linear scale.
type TargetTooSmallError struct {
	Target    int
	Estimated int
	Scale     float64
}

func (e *TargetTooSmallError) Error() string {
	return fmt.Sprintf("target %d bytes unreachable: estimated %d bytes needs scale %.3f, minimum is %.1f",
		e.Target, e.Estimated, e.Scale, minScale)
}

func (e *TargetTooSmallError) Is(target error) bool {
	return target == ErrTargetTooSmall
}

// EncodeError wraps a failure of the underlying codec.
type EncodeError struct {
	Format Format
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
