package watermark

import (
	"fmt"
	"image"
	"strings"
)

// Position anchors the mark inside the image. The zero value is BottomRight.
type Position int

const (
	BottomRight Position = iota
	BottomCenter
	BottomLeft
	MiddleRight
	Center
	MiddleLeft
	TopRight
	TopCenter
	TopLeft
	// Custom places the mark's top-left corner at Config.Offset.
	Custom
)

var positionNames = map[Position]string{
	BottomRight:  "bottom-right",
	BottomCenter: "bottom-center",
	BottomLeft:   "bottom-left",
	MiddleRight:  "middle-right",
	Center:       "center",
	MiddleLeft:   "middle-left",
	TopRight:     "top-right",
	TopCenter:    "top-center",
	TopLeft:      "top-left",
	Custom:       "custom",
}

func (p Position) String() string {
	if name, ok := positionNames[p]; ok {
		return name
	}
	return fmt.Sprintf("position(%d)", int(p))
}

// ParsePosition accepts names like "top-left", "top_left" or "topleft".
func ParsePosition(name string) (Position, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name))
	if norm == "middlecenter" || norm == "centre" {
		norm = "center"
	}
	for p, candidate := range positionNames {
		if strings.ReplaceAll(candidate, "-", "") == norm {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown watermark position %q", name)
}

// place returns the top-left corner of a mark of size mark inside bounds.
// Offsets never go negative, so an oversized mark is pinned to the origin.
func place(p Position, bounds image.Rectangle, mark image.Point, margin int, offset image.Point) image.Point {
	w, h := bounds.Dx(), bounds.Dy()
	left := margin
	right := max(w-mark.X-margin, 0)
	hcenter := max((w-mark.X)/2, 0)
	top := margin
	bottom := max(h-mark.Y-margin, 0)
	vcenter := max((h-mark.Y)/2, 0)

	var x, y int
	switch p {
	case TopLeft:
		x, y = left, top
	case TopCenter:
		x, y = hcenter, top
	case TopRight:
		x, y = right, top
	case MiddleLeft:
		x, y = left, vcenter
	case Center:
		x, y = hcenter, vcenter
	case MiddleRight:
		x, y = right, vcenter
	case BottomLeft:
		x, y = left, bottom
	case BottomCenter:
		x, y = hcenter, bottom
	case Custom:
		x, y = max(offset.X, 0), max(offset.Y, 0)
	default:
		x, y = right, bottom
	}
	return bounds.Min.Add(image.Pt(x, y))
}
