package cbct

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cbctqa/pkg/config"
	"cbctqa/pkg/geometry"
	"cbctqa/pkg/profile"
)

// LinePairFrequencies are the line-pair densities (lp/mm) of the six
// resolution regions.
var LinePairFrequencies = []float64{0.2, 0.4, 0.6, 0.8, 1.0, 1.2}

// Region boundaries into the sorted peaks and the retained valleys.
var (
	peakBounds   = []int{0, 2, 5, 8, 12, 16, 20}
	valleyBounds = []int{0, 1, 3, 5, 8, 11, 14}
)

// valleys between regions rather than within them
var interRegionValleys = map[int]bool{1: true, 4: true, 8: true, 12: true}

// MTFParams controls the line-pair profile and peak search
type MTFParams struct {
	RadiusMM      float64
	WidthRatio    float64
	SamplingRatio float64
	NumProfiles   int
	Cutoff        float64
	MaxRepeat     int
	MinDistance   float64
	PeakThreshold float64
	Peaks         int
	StartAngleDeg float64
	CCW           bool
}

// NewMTFParams combines the MTF settings with a phantom variant.
func NewMTFParams(cfg *config.Config, variant config.Variant) MTFParams {
	return MTFParams{
		RadiusMM:      cfg.MTF.RadiusMM,
		WidthRatio:    cfg.MTF.WidthRatio,
		SamplingRatio: cfg.MTF.SamplingRatio,
		NumProfiles:   cfg.MTF.NumProfiles,
		Cutoff:        cfg.MTF.Cutoff,
		MaxRepeat:     cfg.MTF.MaxRepeat,
		MinDistance:   cfg.MTF.MinDistance,
		PeakThreshold: cfg.MTF.PeakThreshold,
		Peaks:         cfg.MTF.Peaks,
		StartAngleDeg: variant.MTFStartAngleDeg,
		CCW:           variant.MTFCCW,
	}
}

// MTFResult is the relative modulation of the six line-pair regions.
type MTFResult struct {
	// Modulations are normalized so the first region is 1
	Modulations []float64

	// Peaks and Valleys are the extrema used, in equalized profile indices
	Peaks   []profile.Peak
	Valleys []profile.Peak

	// Center and Radius describe the sampled circle, in pixels
	Center geometry.Point
	Radius float64

	curve interp.PiecewiseLinear
}

// LinePairProfile samples the smoothed collapsed circle profile across the
// line-pair region.
func LinePairProfile(img *mat.Dense, l geometry.Layout, p MTFParams) []float64 {
	opts := profile.CircleOptions{
		WidthRatio:    p.WidthRatio,
		NumProfiles:   p.NumProfiles,
		SamplingRatio: p.SamplingRatio,
		StartAngle:    (p.StartAngleDeg + l.RollDeg) * math.Pi / 180,
		CCW:           p.CCW,
	}
	values := profile.CollapsedCircle(img, l.Center, l.Pixels(p.RadiusMM), opts)
	sigma := math.Max(0.001*float64(len(values)), 1)
	return profile.GaussianFilter(values, sigma)
}

// AnalyzeMTF computes the relative MTF of the line-pair region.
func AnalyzeMTF(img *mat.Dense, l geometry.Layout, p MTFParams) (*MTFResult, error) {
	res, err := ModulationsFromProfile(LinePairProfile(img, l, p), p)
	if err != nil {
		return nil, err
	}
	res.Center = l.Center
	res.Radius = l.Pixels(p.RadiusMM)
	return res, nil
}

// ModulationsFromProfile runs spacing equalization, peak and valley search
// and the per-region modulation on a line-pair profile.
func ModulationsFromProfile(values []float64, p MTFParams) (*MTFResult, error) {
	spaced := profile.EqualizeSpacing(values, p.Cutoff, p.MaxRepeat)
	peaks := profile.FindPeaks(spaced, profile.PeakOptions{
		Threshold:   p.PeakThreshold,
		MinDistance: p.MinDistance,
	})
	if len(peaks) != p.Peaks {
		return nil, NewPeakCountError(len(peaks), p.Peaks)
	}

	var valleys []profile.Peak
	for i := 0; i+1 < len(peaks); i++ {
		if interRegionValleys[i] {
			continue
		}
		v, ok := profile.DeepestValley(spaced, peaks[i].Index, peaks[i+1].Index)
		if !ok {
			return nil, &AnalysisError{
				Code:    ErrorPeakCount,
				Slice:   -1,
				Message: fmt.Sprintf("no valley between peaks at %d and %d", peaks[i].Index, peaks[i+1].Index),
			}
		}
		valleys = append(valleys, v)
	}

	peakVals := peakValues(peaks)
	valleyVals := peakValues(valleys)
	mods := make([]float64, len(LinePairFrequencies))
	for region := range mods {
		mp := stat.Mean(window(peakVals, peakBounds[region], peakBounds[region+1]), nil)
		mv := stat.Mean(window(valleyVals, valleyBounds[region], valleyBounds[region+1]), nil)
		mods[region] = (mp - mv) / (mp + mv)
	}
	first := mods[0]
	for i := range mods {
		mods[i] /= first
	}

	res := &MTFResult{Modulations: mods, Peaks: peaks, Valleys: valleys}
	if err := res.curve.Fit(LinePairFrequencies, mods); err != nil {
		return nil, fmt.Errorf("error fitting MTF curve: %w", err)
	}
	return res, nil
}

func peakValues(ps []profile.Peak) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = p.Value
	}
	return out
}

// window returns values[from:to] clamped to the available values, keeping at
// least the element at from when it exists.
func window(values []float64, from, to int) []float64 {
	if from >= len(values) {
		from = len(values) - 1
	}
	if to > len(values) {
		to = len(values)
	}
	if to <= from {
		to = from + 1
	}
	return values[from:to]
}

// Region returns the relative MTF of line-pair region 1..6.
func (r *MTFResult) Region(region int) (float64, error) {
	if region < 1 || region > len(r.Modulations) {
		return 0, fmt.Errorf("line-pair region %d out of range 1..%d", region, len(r.Modulations))
	}
	return r.Modulations[region-1], nil
}

// Percent returns the frequency (lp/mm) at which the relative MTF is closest
// to percent/100, searched on a 0.01 lp/mm grid and rounded to 2 decimals.
func (r *MTFResult) Percent(percent float64) float64 {
	lo, hi := LinePairFrequencies[0], LinePairFrequencies[len(LinePairFrequencies)-1]
	target := percent / 100
	best, bestDiff := lo, math.Inf(1)
	for i := 0; ; i++ {
		x := lo + float64(i)*0.01
		if x >= hi-1e-9 {
			break
		}
		if d := math.Abs(r.curve.Predict(x) - target); d < bestDiff {
			best, bestDiff = x, d
		}
	}
	return math.Round(best*100) / 100
}

func (r *MTFResult) OverallPassed() bool { return true }

func (r *MTFResult) Summary() Result {
	metrics := make(map[string]float64)
	for i, m := range r.Modulations {
		metrics[fmt.Sprintf("region %d", i+1)] = m
	}
	for _, p := range []float64{50, 80} {
		metrics[fmt.Sprintf("mtf%.0f", p)] = r.Percent(p)
	}
	return Result{Module: ModuleSpatialResolution, Passed: true, Metrics: metrics}
}
