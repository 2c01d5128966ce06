package cbct

import "math"

// Tolerance is a band around a nominal value. Inclusive bands accept values
// exactly Tolerance away from Nominal; exclusive bands do not.
type Tolerance struct {
	Nominal   float64
	Tolerance float64
	Exclusive bool
}

// Within builds an inclusive band: |v - nominal| <= tol.
func Within(nominal, tol float64) Tolerance {
	return Tolerance{Nominal: nominal, Tolerance: tol}
}

// Strictly builds an exclusive band: nominal - tol < v < nominal + tol.
func Strictly(nominal, tol float64) Tolerance {
	return Tolerance{Nominal: nominal, Tolerance: tol, Exclusive: true}
}

// Difference is the absolute deviation of v from nominal.
func (t Tolerance) Difference(v float64) float64 {
	return math.Abs(v - t.Nominal)
}

// Passed reports whether v lies in the band. NaN never passes.
func (t Tolerance) Passed(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if t.Exclusive {
		return t.Nominal-t.Tolerance < v && v < t.Nominal+t.Tolerance
	}
	return t.Difference(v) <= t.Tolerance
}

// AtLeast reports whether count meets the required minimum.
func AtLeast(count, required int) bool {
	return count >= required
}

// allPassed is true when every ROI passed.
func allPassed(rois []ROIResult) bool {
	for _, r := range rois {
		if !r.Passed {
			return false
		}
	}
	return true
}
