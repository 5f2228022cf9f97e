package encoder

import (
	"fmt"
	"strings"
)

// Format identifies an output encoding and the strategy that produces it.
type Format int

const (
	JPEG Format = iota
	// PNGToSize trades resolution for bytes to meet the target.
	PNGToSize
	// PNGOriginal keeps full resolution and ignores the target.
	PNGOriginal
	WebPLossy
	WebPLossless
	// Native re-encodes in the source's own container at full quality. It is
	// produced by EncodeNative only and ignores the target.
	Native
)

// Formats lists every output format in declaration order.
var Formats = []Format{JPEG, PNGToSize, PNGOriginal, WebPLossy, WebPLossless}

func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case PNGToSize:
		return "png"
	case PNGOriginal:
		return "png-original"
	case WebPLossy:
		return "webp"
	case WebPLossless:
		return "webp-lossless"
	case Native:
		return "native"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Extension returns the canonical file extension without the dot.
func (f Format) Extension() string {
	switch f {
	case JPEG:
		return "jpg"
	case PNGToSize, PNGOriginal:
		return "png"
	case WebPLossy, WebPLossless:
		return "webp"
	default:
		return "bin"
	}
}

// Parallel reports whether units of this format may be encoded concurrently.
// PNGToSize runs one unit at a time: its resize step allocates a full second
// bitmap per unit and the batch keeps enumeration order for it.
func (f Format) Parallel() bool {
	return f != PNGToSize
}

// ParseFormat maps a user-facing name onto a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jpeg", "jpg":
		return JPEG, nil
	case "png", "png-size", "png-compressed":
		return PNGToSize, nil
	case "png-original", "png-lossless":
		return PNGOriginal, nil
	case "webp", "webp-lossy":
		return WebPLossy, nil
	case "webp-lossless":
		return WebPLossless, nil
	default:
		return 0, fmt.Errorf("unknown format %q (want jpeg|png|png-original|webp|webp-lossless)", name)
	}
}
