package encoder

const (
	estimateRatio    = 0.7
	estimateOverhead = 1024
)

// Estimate predicts the fast-PNG size of a width x height bitmap as 70% of its
// raw RGB size plus a fixed header allowance.
func Estimate(width, height int) int {
	if width <= 0 || height <= 0 {
		return estimateOverhead
	}
	return int(estimateRatio*3*float64(width)*float64(height)) + estimateOverhead
}
