// Package cbct analyzes CT scans of a CatPhan phantom: it finds the module
// slices, locates the phantom and its roll, and measures HU linearity,
// uniformity, low contrast visibility, spatial resolution, geometric
// distortion and slice thickness.
package cbct

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"cbctqa/internal/logging"
	"cbctqa/pkg/config"
	"cbctqa/pkg/geometry"
	"cbctqa/pkg/imgproc"
)

// Analysis is one analysis session over a stack. Slice indices, roll and
// phantom centers are computed once by Prepare and shared read-only by the
// module analyzers.
type Analysis struct {
	store   SliceStore
	cfg     *config.Config
	variant config.Variant
	logger  *logging.Logger

	// prepared is set once the fields below are filled
	prepared bool

	// indices are the module slice positions
	indices SliceIndices

	// roll is the phantom roll in degrees
	roll float64

	// centers caches the phantom center per slice index
	centers map[int]geometry.Point

	// centerErrs caches localization failures per slice index
	centerErrs map[int]error

	// warnings are non-fatal conditions found while preparing
	warnings []Warning
}

// moduleJob binds a module to the slice it reads and how neighbouring slices
// are combined.
type moduleJob struct {
	name      string
	slice     int
	plusMinus int
	mode      imgproc.CombineMode
	run       func(img *mat.Dense, l geometry.Layout) (Outcome, error)
}

// NewAnalysis creates a session for store.
func NewAnalysis(store SliceStore, cfg *config.Config, logger *logging.Logger) (*Analysis, error) {
	if store == nil || store.Len() < 4 {
		return nil, NewInvalidInputError("a stack of at least 4 slices is required", nil)
	}
	if store.MMPerPixel() <= 0 {
		return nil, NewInvalidInputError(fmt.Sprintf("non-positive pixel spacing %v", store.MMPerPixel()), nil)
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewInvalidInputError("invalid configuration", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Analysis{
		store:      store,
		cfg:        cfg,
		variant:    cfg.Variant(store.Manufacturer()),
		logger:     logger,
		centers:    make(map[int]geometry.Point),
		centerErrs: make(map[int]error),
	}, nil
}

// Prepare selects the module slices, estimates the roll and locates the
// phantom on every module slice. It is idempotent.
func (a *Analysis) Prepare() error {
	if a.prepared {
		return nil
	}

	// Step 1: Slice selection
	sel := NewSelector(a.store, a.cfg, a.logger)
	indices, err := sel.Select()
	if err != nil {
		return err
	}
	a.indices = indices
	for i, c := range sel.Centers() {
		a.centers[i] = c
	}
	a.logger.Info("Selected module slices",
		"hu", indices.HU, "uniformity", indices.Uniformity,
		"spatialResolution", indices.SpatialResolution, "lowContrast", indices.LowContrast)

	// Every module reads its slice and its neighbours
	for _, j := range a.jobs() {
		if err := a.checkWindow(j.slice, j.plusMinus); err != nil {
			return inModule(err, j.name)
		}
	}

	// Step 2: Roll from the HU slice markers
	mmpp := a.store.MMPerPixel()
	roll, ambiguous := EstimateRoll(a.store.At(indices.HU), RollOptions{
		Threshold:   a.cfg.Analysis.Threshold,
		MarkerArea:  MarkerArea(a.cfg.Analysis.AirBubbleRadiusMM, mmpp),
		MarkerLower: a.cfg.Locator.MarkerLower,
		MarkerUpper: a.cfg.Locator.MarkerUpper,
	})
	a.roll = roll
	if ambiguous {
		w := Warning{Code: WarningAmbiguousRoll, Message: "phantom roll could not be determined; assuming 0"}
		a.warnings = append(a.warnings, w)
		a.logger.Warn(w.Message, "slice", indices.HU)
	} else {
		a.logger.Info("Estimated phantom roll", "degrees", fmt.Sprintf("%.2f", roll))
	}

	// Step 3: Phantom centers, located once per slice
	for _, i := range []int{indices.HU, indices.Uniformity, indices.SpatialResolution, indices.LowContrast} {
		if i >= 0 {
			a.locate(i)
		}
	}
	if err := a.centerErrs[indices.HU]; err != nil {
		return err
	}

	a.prepared = true
	return nil
}

// locate fills the center cache for slice i.
func (a *Analysis) locate(i int) {
	if _, ok := a.centers[i]; ok {
		return
	}
	if _, ok := a.centerErrs[i]; ok {
		return
	}
	opts := NewLocateOptions(a.cfg, a.variant, a.store.MMPerPixel())
	c, err := Locate(a.store.At(i), opts)
	if err != nil {
		var ae *AnalysisError
		if errors.As(err, &ae) {
			ae.Slice = i
			if ae.Details != nil {
				ae.Details["slice"] = i
			}
		}
		a.centerErrs[i] = err
		a.logger.Error("Phantom not found", "slice", i, "error", err)
		return
	}
	a.centers[i] = c
	a.logger.Debug("Located phantom", "slice", i, "x", fmt.Sprintf("%.2f", c.X), "y", fmt.Sprintf("%.2f", c.Y))
}

// Center returns the cached phantom center of slice i. Before Prepare it
// computes and caches the center; it must not be called concurrently until
// Prepare has run.
func (a *Analysis) Center(i int) (geometry.Point, error) {
	a.locate(i)
	if err := a.centerErrs[i]; err != nil {
		return geometry.Point{}, err
	}
	return a.centers[i], nil
}

// Roll returns the estimated roll in degrees.
func (a *Analysis) Roll() float64 { return a.roll }

// Indices returns the module slice positions.
func (a *Analysis) Indices() SliceIndices { return a.indices }

// Warnings returns the non-fatal conditions recorded so far.
func (a *Analysis) Warnings() []Warning { return a.warnings }

// Variant returns the phantom geometry in use.
func (a *Analysis) Variant() config.Variant { return a.variant }

// Layout returns the ROI layout of slice i.
func (a *Analysis) Layout(i int) (geometry.Layout, error) {
	c, err := a.Center(i)
	if err != nil {
		return geometry.Layout{}, err
	}
	return geometry.Layout{Center: c, RollDeg: a.roll, MMPerPixel: a.store.MMPerPixel()}, nil
}

// Image returns slice i combined with plusMinus neighbours on each side.
// Every neighbour must lie inside the stack.
func (a *Analysis) Image(i, plusMinus int, mode imgproc.CombineMode) (*mat.Dense, error) {
	if err := a.checkWindow(i, plusMinus); err != nil {
		return nil, err
	}
	images := make([]*mat.Dense, 0, 2*plusMinus+1)
	for j := i - plusMinus; j <= i+plusMinus; j++ {
		images = append(images, a.store.At(j))
	}
	return imgproc.Combine(images, mode)
}

// checkWindow fails with an ExtentError when slices i-plusMinus..i+plusMinus
// do not all exist.
func (a *Analysis) checkWindow(i, plusMinus int) error {
	n := a.store.Len()
	if i-plusMinus < 0 || i+plusMinus >= n {
		return NewExtentError(i, n, fmt.Sprintf("slices %d..%d around slice %d are outside the stack of %d slices", i-plusMinus, i+plusMinus, i, n))
	}
	return nil
}

func (a *Analysis) jobs() []moduleJob {
	cfg := a.cfg
	idx := a.indices
	jobs := []moduleJob{
		{ModuleHU, idx.HU, 1, imgproc.CombineMean, func(img *mat.Dense, l geometry.Layout) (Outcome, error) {
			return AnalyzeHU(img, l, cfg.Analysis.HUTolerance), nil
		}},
		{ModuleUniformity, idx.Uniformity, 1, imgproc.CombineMean, func(img *mat.Dense, l geometry.Layout) (Outcome, error) {
			return AnalyzeUniformity(img, l, cfg.Analysis.HUTolerance), nil
		}},
		{ModuleGeometry, idx.HU, 1, imgproc.CombineMean, func(img *mat.Dense, l geometry.Layout) (Outcome, error) {
			return AnalyzeGeometry(img, l, cfg.Analysis.ScalingTolerance)
		}},
		{ModuleThickness, idx.HU, 1, imgproc.CombineMean, func(img *mat.Dense, l geometry.Layout) (Outcome, error) {
			return AnalyzeThickness(img, l, ThicknessParams{
				WireFactor:  cfg.Thickness.WireFactor,
				RampDivisor: cfg.Thickness.RampDivisor,
				Nominal:     a.store.SliceThickness(),
				Tolerance:   cfg.Analysis.ThicknessTolerance,
			}), nil
		}},
		{ModuleSpatialResolution, idx.SpatialResolution, 1, imgproc.CombineMax, func(img *mat.Dense, l geometry.Layout) (Outcome, error) {
			return AnalyzeMTF(img, l, NewMTFParams(cfg, a.variant))
		}},
	}
	if a.variant.LowContrast {
		jobs = append(jobs, moduleJob{ModuleLowContrast, idx.LowContrast, 3, imgproc.CombineMean, func(img *mat.Dense, l geometry.Layout) (Outcome, error) {
			return AnalyzeLowContrast(img, l, cfg.Analysis.ContrastThreshold, cfg.Analysis.LowContrastTolerance), nil
		}})
	}
	return jobs
}

// runJob builds the module image and layout and runs the analyzer.
func (a *Analysis) runJob(j moduleJob) (Outcome, error) {
	l, err := a.Layout(j.slice)
	if err != nil {
		return nil, err
	}
	img, err := a.Image(j.slice, j.plusMinus, j.mode)
	if err != nil {
		return nil, err
	}
	out, err := j.run(img, l)
	if err != nil {
		var ae *AnalysisError
		if errors.As(err, &ae) && ae.Slice < 0 {
			ae.Slice = j.slice
		}
		return nil, err
	}
	return out, nil
}

// Analyze prepares the session and runs every module concurrently. Module
// failures are recorded in the report; only preparation failures are
// returned as errors.
func (a *Analysis) Analyze() (*Report, error) {
	start := time.Now()
	if err := a.Prepare(); err != nil {
		return nil, err
	}

	jobs := a.jobs()

	// Create a channel for results
	type moduleResult struct {
		job     moduleJob
		outcome Outcome
		err     error
	}
	resultChan := make(chan moduleResult)

	for _, j := range jobs {
		go func(j moduleJob) {
			out, err := a.runJob(j)
			resultChan <- moduleResult{job: j, outcome: out, err: inModule(err, j.name)}
		}(j)
	}

	report := newReport(a)

	// Collect results
	for completed := 0; completed < len(jobs); completed++ {
		res := <-resultChan
		if res.err != nil {
			a.logger.Error("Module failed", "module", res.job.name, "error", res.err)
			report.addError(res.job.name, res.job.slice, res.err)
			continue
		}
		a.logger.Info("Module analyzed", "module", res.job.name, "passed", res.outcome.OverallPassed())
		report.add(res.job.name, res.job.slice, res.outcome)
	}

	report.sortResults()
	report.Duration = time.Since(start)
	a.logger.Info("Analysis complete", "run", report.RunID, "passed", report.Passed(), "duration", report.Duration)
	return report, nil
}

// newRunID generates the identifier of one analysis run.
func newRunID() string {
	return uuid.New().String()
}
