// Package profile samples 1-D intensity profiles from slices and analyzes
// them: circular sampling, smoothing, spacing equalization, peak and valley
// search, and full-width-at-x-maximum measurements.
package profile

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"

	"cbctqa/pkg/imgproc"
)

// CircleOptions controls how a circular profile is sampled.
type CircleOptions struct {
	// WidthRatio spreads collapsed sub-profiles over radius*(1±WidthRatio)
	WidthRatio float64

	// NumProfiles is the number of sub-profiles averaged together
	NumProfiles int

	// SamplingRatio is the number of samples per pixel of circumference
	SamplingRatio float64

	// StartAngle is the angle of the first sample, in radians
	StartAngle float64

	// CCW reverses the sample order
	CCW bool
}

// DefaultCircleOptions mirrors a single, unit-sampled profile starting at 0.
func DefaultCircleOptions() CircleOptions {
	return CircleOptions{NumProfiles: 1, SamplingRatio: 1}
}

// Sample returns the bilinearly interpolated value at (x, y), clamping the
// coordinates to the image.
func Sample(img *mat.Dense, x, y float64) float64 {
	rows, cols := img.Dims()
	x = math.Max(0, math.Min(float64(cols-1), x))
	y = math.Max(0, math.Min(float64(rows-1), y))

	c0, r0 := int(math.Floor(x)), int(math.Floor(y))
	c1, r1 := c0+1, r0+1
	if c1 > cols-1 {
		c1 = cols - 1
	}
	if r1 > rows-1 {
		r1 = rows - 1
	}
	fx, fy := x-float64(c0), y-float64(r0)

	top := img.At(r0, c0)*(1-fx) + img.At(r0, c1)*fx
	bottom := img.At(r1, c0)*(1-fx) + img.At(r1, c1)*fx
	return top*(1-fy) + bottom*fy
}

// Circle samples the image along a circle.
func Circle(img *mat.Dense, center r2.Vec, radius float64, opts CircleOptions) []float64 {
	n := int(math.Round(2 * math.Pi * radius * opts.SamplingRatio))
	if n < 1 {
		n = 1
	}
	values := make([]float64, n)
	interval := 2 * math.Pi / float64(n)
	for i := 0; i < n; i++ {
		a := opts.StartAngle + float64(i)*interval
		values[i] = Sample(img, center.X+radius*math.Cos(a), center.Y+radius*math.Sin(a))
	}
	if opts.CCW {
		reverse(values)
	}
	return values
}

// CollapsedCircle averages NumProfiles circular profiles spread evenly across
// radius*(1-WidthRatio) .. radius*(1+WidthRatio).
func CollapsedCircle(img *mat.Dense, center r2.Vec, radius float64, opts CircleOptions) []float64 {
	num := opts.NumProfiles
	if num < 1 {
		num = 1
	}
	// every sub-profile uses the nominal radius' sample count so they line up
	n := int(math.Round(2 * math.Pi * radius * opts.SamplingRatio))
	if n < 1 {
		n = 1
	}
	interval := 2 * math.Pi / float64(n)

	radii := []float64{radius}
	if num > 1 {
		radii = make([]float64, num)
		floats.Span(radii, radius*(1-opts.WidthRatio), radius*(1+opts.WidthRatio))
	}

	values := make([]float64, n)
	for _, r := range radii {
		for i := 0; i < n; i++ {
			a := opts.StartAngle + float64(i)*interval
			values[i] += Sample(img, center.X+r*math.Cos(a), center.Y+r*math.Sin(a))
		}
	}
	floats.Scale(1/float64(len(radii)), values)
	if opts.CCW {
		reverse(values)
	}
	return values
}

func reverse(values []float64) {
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
}

// Percentile returns the p-th percentile (0..100) of values, interpolating
// linearly between the order statistics around rank (n-1)*p/100. It returns
// NaN when values is empty.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := float64(len(sorted)-1) * math.Max(0, math.Min(100, p)) / 100
	lo := int(math.Floor(rank))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Ground returns a copy of values shifted so the minimum is 0.
func Ground(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	min := floats.Min(values)
	for i, v := range values {
		out[i] = v - min
	}
	return out
}

// GaussianFilter smooths values with a gaussian of the given sigma (in
// samples), mirroring at the ends.
func GaussianFilter(values []float64, sigma float64) []float64 {
	out := make([]float64, len(values))
	if sigma <= 0 {
		copy(out, values)
		return out
	}
	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)

	n := len(values)
	for i := 0; i < n; i++ {
		var sum float64
		for k, w := range kernel {
			sum += w * values[imgproc.ReflectIndex(i+k-radius, n)]
		}
		out[i] = sum
	}
	return out
}

// MedianFilter applies a 1-D median filter of the given window size.
func MedianFilter(values []float64, size int) []float64 {
	out := make([]float64, len(values))
	if size <= 1 {
		copy(out, values)
		return out
	}
	n := len(values)
	lo := size / 2
	window := make([]float64, size)
	for i := 0; i < n; i++ {
		for k := 0; k < size; k++ {
			window[k] = values[imgproc.ReflectIndex(i+k-lo, n)]
		}
		sort.Float64s(window)
		out[i] = window[size/2]
	}
	return out
}

// RelativeSize turns a fraction of length into a sample count of at least 1.
func RelativeSize(fraction float64, length int) int {
	size := int(math.Round(fraction * float64(length)))
	if size < 1 {
		size = 1
	}
	return size
}

// EqualizeSpacing keeps the first cutoff fraction of values and repeats each
// sample a linearly increasing number of times, from 1 up to maxRepeat, so
// that finely spaced features at the end of the profile are sampled as
// densely as coarse ones at the start. The result is grounded.
func EqualizeSpacing(values []float64, cutoff float64, maxRepeat int) []float64 {
	n := int(cutoff * float64(len(values)))
	if n > len(values) {
		n = len(values)
	}
	if n <= 0 {
		return nil
	}

	repeats := make([]float64, n)
	if n == 1 {
		repeats[0] = 1
	} else {
		floats.Span(repeats, 1, float64(maxRepeat))
	}

	var out []float64
	for i := 0; i < n; i++ {
		for k := 0; k < int(repeats[i]); k++ {
			out = append(out, values[i])
		}
	}
	return Ground(out)
}
