package cbct

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cbctqa/pkg/geometry"
	"cbctqa/pkg/imgproc"
	"cbctqa/pkg/profile"
	"cbctqa/pkg/roi"
)

const (
	thicknessDistMM     = 38.0
	thicknessFilterFrac = 0.05
)

var wirePlacements = []struct {
	name              string
	angle             float64
	widthMM, heightMM float64
}{
	{"Left", 180, 8, 40},
	{"Top", 90, 40, 8},
	{"Right", 0, 8, 40},
	{"Bottom", -90, 40, 8},
}

// ThicknessParams holds the wire ramp calibration and tolerance
type ThicknessParams struct {
	// WireFactor converts the projected wire width to the ramp's run
	WireFactor float64

	// RampDivisor converts the corrected width to slice thickness
	RampDivisor float64

	// Nominal is the acquisition slice thickness in mm
	Nominal float64

	// Tolerance is the allowed deviation in mm
	Tolerance float64
}

// WireResult is the FWHM measured on one wire ramp.
type WireResult struct {
	Name    string  `yaml:"name"`
	FWHM    float64 `yaml:"fwhm"`
	WidthMM float64 `yaml:"widthMM"`

	Shape roi.Rectangle `yaml:"-"`
}

// ThicknessResult is the outcome of the slice thickness module.
type ThicknessResult struct {
	Wires     []WireResult
	Average   float64
	Nominal   float64
	Tolerance float64
}

// WireFWHM measures the wire width in pixels inside a rectangle. The
// sub-array is median filtered with a window sized from its row count, collapsed to its maximum across the short
// axis, median filtered again as a profile, and its interpolated FWHM
// taken.
func WireFWHM(img *mat.Dense, r roi.Rectangle) float64 {
	sub := r.SubArray(img)
	if sub == nil {
		return 0
	}
	rows, cols := sub.Dims()
	sub = imgproc.MedianFilter(sub, profile.RelativeSize(thicknessFilterFrac, rows))

	var values []float64
	if rows <= cols {
		// collapse rows: profile runs along columns
		values = make([]float64, cols)
		for c := 0; c < cols; c++ {
			values[c] = mat.Max(sub.ColView(c))
		}
	} else {
		values = make([]float64, rows)
		for r := 0; r < rows; r++ {
			values[r] = mat.Max(sub.RowView(r))
		}
	}
	values = profile.MedianFilter(values, profile.RelativeSize(thicknessFilterFrac, len(values)))
	return profile.FWXM(values, 50)
}

// AnalyzeThickness measures the four wire ramps. The slice thickness is the
// mean of the two largest corrected widths divided by the ramp divisor.
func AnalyzeThickness(img *mat.Dense, l geometry.Layout, p ThicknessParams) *ThicknessResult {
	res := &ThicknessResult{Nominal: p.Nominal, Tolerance: p.Tolerance}
	var widths []float64
	for _, s := range wirePlacements {
		rect := roi.NewRectangle(s.name, l, s.angle, thicknessDistMM, s.widthMM, s.heightMM)
		fwhm := WireFWHM(img, rect)
		w := l.MM(fwhm) * p.WireFactor
		widths = append(widths, w)
		res.Wires = append(res.Wires, WireResult{Name: s.name, FWHM: fwhm, WidthMM: w, Shape: rect})
	}

	sort.Float64s(widths)
	top := widths
	if len(top) > 2 {
		top = top[len(top)-2:]
	}
	res.Average = stat.Mean(top, nil) / p.RampDivisor
	return res
}

func (r *ThicknessResult) OverallPassed() bool {
	return Strictly(r.Nominal, r.Tolerance).Passed(r.Average)
}

func (r *ThicknessResult) Regions() []roi.ROI {
	out := make([]roi.ROI, len(r.Wires))
	for i, w := range r.Wires {
		out[i] = w.Shape
	}
	return out
}

func (r *ThicknessResult) Summary() Result {
	metrics := map[string]float64{
		"sliceThickness": r.Average,
		"nominal":        r.Nominal,
	}
	for _, w := range r.Wires {
		metrics["fwhm "+w.Name] = w.FWHM
	}
	return Result{Module: ModuleThickness, Passed: r.OverallPassed(), Metrics: metrics}
}
