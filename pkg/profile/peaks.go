package profile

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Peak is an extremum of a profile.
type Peak struct {
	Index int
	Value float64
}

// PeakOptions controls the peak search.
type PeakOptions struct {
	// Threshold is the minimum height as a fraction of the profile range above its minimum
	Threshold float64

	// MinDistance is the minimum separation as a fraction of the profile length
	MinDistance float64
}

// FindPeaks returns the local maxima of values, ordered by index.
//
// A run of equal samples counts as one maximum, located at the middle of the
// run, when both neighbouring samples are lower. Samples touching either end
// of the profile are never peaks. Maxima at or below the threshold are
// dropped, then maxima are taken from the highest down, discarding any
// closer than MinDistance to one already taken.
func FindPeaks(values []float64, opts PeakOptions) []Peak {
	n := len(values)
	if n < 3 {
		return nil
	}
	min, max := floats.Min(values), floats.Max(values)
	threshold := min + opts.Threshold*(max-min)
	minDist := int(opts.MinDistance * float64(n))

	var candidates []Peak
	for i := 1; i < n-1; {
		j := i + 1
		for j < n && values[j] == values[i] {
			j++
		}
		v := values[i]
		if j < n && values[i-1] < v && values[j] < v && v > threshold {
			candidates = append(candidates, Peak{Index: (i + j - 1) / 2, Value: v})
		}
		i = j
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Value > candidates[b].Value
	})

	var kept []Peak
	for _, c := range candidates {
		ok := true
		for _, k := range kept {
			if abs(c.Index-k.Index) < minDist {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}

	sort.Slice(kept, func(a, b int) bool { return kept[a].Index < kept[b].Index })
	return kept
}

// DeepestValley returns the minimum strictly between indices from and to.
// The first occurrence wins ties. ok is false when the interval is empty.
func DeepestValley(values []float64, from, to int) (Peak, bool) {
	if from > to {
		from, to = to, from
	}
	if from < -1 {
		from = -1
	}
	if to > len(values) {
		to = len(values)
	}
	best := Peak{Index: -1, Value: math.Inf(1)}
	for i := from + 1; i < to; i++ {
		if values[i] < best.Value {
			best = Peak{Index: i, Value: values[i]}
		}
	}
	return best, best.Index >= 0
}

// Edges returns the interpolated positions left and right of the maximum
// where the profile crosses x percent of its height above the minimum.
// If the profile never drops below the level on one side, that side's end
// index is used.
func Edges(values []float64, x float64) (left, right float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}
	peak := floats.MaxIdx(values)
	min := floats.Min(values)
	level := min + (values[peak]-min)*x/100

	left = 0
	for i := peak; i > 0; i-- {
		if values[i-1] < level {
			left = crossing(float64(i-1), values[i-1], values[i], level)
			break
		}
	}

	right = float64(n - 1)
	for i := peak; i < n-1; i++ {
		if values[i+1] < level {
			right = crossing(float64(i), values[i], values[i+1], level)
			break
		}
	}
	return left, right
}

// crossing interpolates where the segment (i, a) -> (i+1, b) meets level.
func crossing(i, a, b, level float64) float64 {
	if a == b {
		return i
	}
	return i + (level-a)/(b-a)
}

// FWXM is the full width at x percent of maximum, in samples.
func FWXM(values []float64, x float64) float64 {
	left, right := Edges(values, x)
	return right - left
}

// FWXMCenter is the midpoint of the x-percent-of-maximum crossings.
func FWXMCenter(values []float64, x float64) float64 {
	left, right := Edges(values, x)
	return (left + right) / 2
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
