package cbct

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"cbctqa/pkg/config"
	"cbctqa/pkg/geometry"
	"cbctqa/pkg/imgproc"
)

// LocateOptions parameterizes the phantom search
type LocateOptions struct {
	// Threshold binarizes the slice; pixels >= Threshold are foreground
	Threshold float64

	// ExpectedArea is the phantom cross-section in pixels
	ExpectedArea float64

	// AreaLower and AreaUpper bound a component's area as fractions of ExpectedArea
	AreaLower float64
	AreaUpper float64

	// FillLower and FillUpper bound the fill ratio as fractions of π/4
	FillLower float64
	FillUpper float64
}

// NewLocateOptions builds locator options for a stack's pixel spacing and
// phantom variant.
func NewLocateOptions(cfg *config.Config, variant config.Variant, mmPerPixel float64) LocateOptions {
	return LocateOptions{
		Threshold:    cfg.Analysis.Threshold,
		ExpectedArea: ExpectedPhantomArea(variant.PhantomRadiusMM, mmPerPixel),
		AreaLower:    cfg.Locator.AreaLower,
		AreaUpper:    cfg.Locator.AreaUpper,
		FillLower:    cfg.Locator.FillLower,
		FillUpper:    cfg.Locator.FillUpper,
	}
}

// ExpectedPhantomArea is the area in pixels of a circle of radiusMM.
func ExpectedPhantomArea(radiusMM, mmPerPixel float64) float64 {
	return math.Pi * radiusMM * radiusMM / (mmPerPixel * mmPerPixel)
}

// Locate finds the phantom center in a slice.
//
// The slice is binarized and split into 8-connected components. The
// component whose area is closest to the expected area, among those strictly
// inside the area band, is the phantom candidate; it must also fill its
// bounding box like a circle does. The center is the candidate's centroid
// as (x=column, y=row).
func Locate(img *mat.Dense, opts LocateOptions) (geometry.Point, error) {
	_, regions := imgproc.Label(imgproc.Binarize(img, opts.Threshold))
	if len(regions) == 0 {
		return geometry.Point{}, NewLocalizationError(-1, "no foreground region found")
	}

	lo, hi := opts.ExpectedArea*opts.AreaLower, opts.ExpectedArea*opts.AreaUpper
	best := -1
	bestDiff := math.Inf(1)
	for i, reg := range regions {
		area := float64(reg.Area)
		if area <= lo || area >= hi {
			continue
		}
		if d := math.Abs(area - opts.ExpectedArea); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	if best < 0 {
		return geometry.Point{}, NewLocalizationError(-1,
			fmt.Sprintf("no region with area between %.0f and %.0f px", lo, hi))
	}

	phantom := regions[best]
	circle := math.Pi / 4
	if ratio := phantom.FillRatio(); !(ratio > circle*opts.FillLower && ratio < circle*opts.FillUpper) {
		return geometry.Point{}, NewLocalizationError(-1,
			fmt.Sprintf("phantom candidate is not circular (fill ratio %.3f)", ratio))
	}

	return phantom.Centroid(), nil
}
