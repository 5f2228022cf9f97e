package batch

import (
	"context"
	"errors"
	"fmt"

	"pixfit/internal/encoder"
	"pixfit/internal/imageio"
)

var (
	ErrNoWorkUnits = errors.New("no convertible files found")
	ErrNotFolder   = errors.New("not a folder")
	ErrNotFile     = errors.New("not a regular file")
)

// InputError is a problem with what the user pointed pixfit at. It aborts the
// whole batch.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// WriteError reports an output file that could not be persisted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Kind names the failure class of err for reports.
func Kind(err error) string {
	var (
		inputErr  *InputError
		decodeErr *imageio.DecodeError
		tooSmall  *encoder.TargetTooSmallError
		encodeErr *encoder.EncodeError
		writeErr  *WriteError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &inputErr):
		return "input"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &tooSmall):
		return "target-too-small"
	case errors.As(err, &encodeErr):
		return "encode"
	case errors.As(err, &writeErr):
		return "write"
	case errors.Is(err, errWatermark):
		return "watermark"
	default:
		return "error"
	}
}
