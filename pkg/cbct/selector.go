package cbct

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"cbctqa/internal/logging"
	"cbctqa/pkg/config"
	"cbctqa/pkg/geometry"
	"cbctqa/pkg/imgproc"
	"cbctqa/pkg/profile"
)

// SliceStore is the ordered slice sequence the analysis reads from.
type SliceStore interface {
	Len() int
	At(i int) *mat.Dense
	MMPerPixel() float64
	SliceThickness() float64
	Manufacturer() string
}

// SliceIndices are the stack positions of each module. LowContrast is -1
// for phantoms without a low contrast module.
type SliceIndices struct {
	HU                int `yaml:"hu"`
	Uniformity        int `yaml:"uniformity"`
	SpatialResolution int `yaml:"spatialResolution"`
	LowContrast       int `yaml:"lowContrast"`
}

// Selector finds the module slices of a stack
type Selector struct {
	store   SliceStore
	cfg     *config.Config
	variant config.Variant
	locate  LocateOptions
	logger  *logging.Logger

	// centers holds the phantom centers found while searching
	centers map[int]geometry.Point
}

// NewSelector creates a selector for store.
func NewSelector(store SliceStore, cfg *config.Config, logger *logging.Logger) *Selector {
	variant := cfg.Variant(store.Manufacturer())
	return &Selector{
		store:   store,
		cfg:     cfg,
		variant: variant,
		locate:  NewLocateOptions(cfg, variant, store.MMPerPixel()),
		logger:  logger,
		centers: make(map[int]geometry.Point),
	}
}

// Centers returns the phantom centers located during the reference search,
// keyed by slice index.
func (s *Selector) Centers() map[int]geometry.Point { return s.centers }

// withinExtent reports whether i leaves at least one usable slice on each
// side, i.e. 1 < i < n-1.
func withinExtent(i, n int) bool {
	return i > 1 && i < n-1
}

// IsReferenceCandidate decides whether a circular profile through the HU
// inserts shows both very low and very high inserts on an otherwise flat
// background.
func IsReferenceCandidate(values []float64, contrastHU, flatnessHU float64) bool {
	if len(values) == 0 {
		return false
	}
	median := imgproc.Median(values)
	p2 := profile.Percentile(values, 2)
	p98 := profile.Percentile(values, 98)
	spread := profile.Percentile(values, 80) - profile.Percentile(values, 20)
	return p2 < median-contrastHU && p98 > median+contrastHU && spread < flatnessHU
}

// ReferenceSlice scans every Step-th slice and returns the median of the
// slices that look like the HU module.
func (s *Selector) ReferenceSlice() (int, error) {
	n := s.store.Len()
	opts := profile.CircleOptions{
		WidthRatio:    s.cfg.Selector.WidthRatio,
		NumProfiles:   s.cfg.Selector.NumProfiles,
		SamplingRatio: 1,
	}
	radius := s.cfg.Selector.ProfileRadiusMM / s.store.MMPerPixel()

	var candidates []float64
	for i := 0; i < n; i += s.cfg.Selector.Step {
		img := s.store.At(i)
		center, err := Locate(img, s.locate)
		if err != nil {
			// slices without the phantom in view
			continue
		}
		s.centers[i] = center
		values := profile.CollapsedCircle(img, center, radius, opts)
		if IsReferenceCandidate(values, s.cfg.Selector.ContrastHU, s.cfg.Selector.FlatnessHU) {
			candidates = append(candidates, float64(i))
		}
	}
	if len(candidates) == 0 {
		return -1, NewExtentError(-1, n, "no slice resembles the HU linearity module")
	}

	ref := int(math.RoundToEven(imgproc.Median(candidates)))
	s.logger.Debug("Reference slice candidates", "count", len(candidates), "reference", ref)
	if !withinExtent(ref, n) {
		return -1, NewExtentError(ref, n, fmt.Sprintf("reference slice %d is outside the usable range of %d slices", ref, n))
	}
	return ref, nil
}

// Offset converts a physical offset from the reference slice into a slice
// index.
func Offset(ref int, offsetMM, thickness float64) int {
	return ref + int(math.RoundToEven(offsetMM/thickness))
}

// Select finds the reference slice and derives the dependent module slices.
func (s *Selector) Select() (SliceIndices, error) {
	thickness := s.store.SliceThickness()
	if thickness <= 0 {
		return SliceIndices{}, NewInvalidInputError(fmt.Sprintf("non-positive slice thickness %v", thickness), nil)
	}

	ref, err := s.ReferenceSlice()
	if err != nil {
		return SliceIndices{}, err
	}

	n := s.store.Len()
	idx := SliceIndices{
		HU:                ref,
		Uniformity:        Offset(ref, s.variant.UniformityOffsetMM, thickness),
		SpatialResolution: Offset(ref, s.variant.SpatialResOffsetMM, thickness),
		LowContrast:       -1,
	}
	if s.variant.LowContrast {
		idx.LowContrast = Offset(ref, s.variant.LowContrastOffsetMM, thickness)
	}

	checks := []struct {
		name  string
		index int
	}{
		{ModuleUniformity, idx.Uniformity},
		{ModuleSpatialResolution, idx.SpatialResolution},
	}
	if s.variant.LowContrast {
		checks = append(checks, struct {
			name  string
			index int
		}{ModuleLowContrast, idx.LowContrast})
	}
	for _, c := range checks {
		if !withinExtent(c.index, n) {
			err := NewExtentError(c.index, n, fmt.Sprintf("%s slice %d is outside the usable range of %d slices", c.name, c.index, n))
			err.Module = c.name
			return SliceIndices{}, err
		}
	}
	return idx, nil
}
