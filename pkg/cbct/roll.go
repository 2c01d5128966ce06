package cbct

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"cbctqa/pkg/imgproc"
)

// RollOptions parameterizes the roll estimate
type RollOptions struct {
	// Threshold binarizes the slice before inversion
	Threshold float64

	// MarkerArea is the expected area in pixels of one air marker
	MarkerArea float64

	// MarkerLower and MarkerUpper bound a marker's area as fractions of MarkerArea
	MarkerLower float64
	MarkerUpper float64
}

// MarkerArea is the area in pixels of an air marker of radiusMM.
func MarkerArea(radiusMM, mmPerPixel float64) float64 {
	return math.Pi * radiusMM * radiusMM / (mmPerPixel * mmPerPixel)
}

// EstimateRoll measures the phantom roll, in degrees, from the two air
// markers of the reference slice.
//
// Low-intensity components whose area lies strictly inside the marker band
// are markers. With exactly two markers, the one with the smaller row is
// "lower" and the roll is the angle from lower to upper minus 90°, so that
// markers on the vertical axis give zero. Otherwise the roll is 0 and
// ambiguous is true.
func EstimateRoll(img *mat.Dense, opts RollOptions) (roll float64, ambiguous bool) {
	_, regions := imgproc.Label(imgproc.Binarize(img, opts.Threshold).Invert())

	lo, hi := opts.MarkerArea*opts.MarkerLower, opts.MarkerArea*opts.MarkerUpper
	var markers []imgproc.Region
	for _, reg := range regions {
		if a := float64(reg.Area); a > lo && a < hi {
			markers = append(markers, reg)
		}
	}
	if len(markers) != 2 {
		return 0, true
	}

	lower, upper := markers[0].Centroid(), markers[1].Centroid()
	if upper.Y < lower.Y {
		lower, upper = upper, lower
	}
	angle := math.Atan2(upper.Y-lower.Y, upper.X-lower.X) * 180 / math.Pi
	return angle - 90, false
}
