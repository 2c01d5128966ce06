package cbct

import (
	"gonum.org/v1/gonum/mat"

	"cbctqa/pkg/geometry"
	"cbctqa/pkg/roi"
)

// Module names as they appear in reports and errors
const (
	ModuleHU                = "HU Linearity"
	ModuleUniformity        = "Uniformity"
	ModuleLowContrast       = "Low Contrast"
	ModuleSpatialResolution = "Spatial Resolution"
	ModuleGeometry          = "Geometry"
	ModuleThickness         = "Slice Thickness"
)

// Outcome is what every module analyzer produces.
type Outcome interface {
	// Summary flattens the outcome into a report entry
	Summary() Result

	// OverallPassed is the module verdict
	OverallPassed() bool
}

// Placer is implemented by outcomes that carry placed ROIs, for overlays.
type Placer interface {
	Regions() []roi.ROI
}

// ROIResult is the measurement of one ROI against its nominal value.
type ROIResult struct {
	Name       string  `yaml:"name"`
	X          float64 `yaml:"x"`
	Y          float64 `yaml:"y"`
	Value      float64 `yaml:"value"`
	Nominal    float64 `yaml:"nominal"`
	Difference float64 `yaml:"difference"`
	Passed     bool    `yaml:"passed"`

	Shape roi.ROI `yaml:"-"`
}

func measure(r roi.ROI, img *mat.Dense, tol Tolerance) ROIResult {
	v := r.Value(img)
	c := r.Position()
	return ROIResult{
		Name:       r.Label(),
		X:          c.X,
		Y:          c.Y,
		Value:      v,
		Nominal:    tol.Nominal,
		Difference: tol.Difference(v),
		Passed:     tol.Passed(v),
		Shape:      r,
	}
}

func shapes(results []ROIResult) []roi.ROI {
	out := make([]roi.ROI, len(results))
	for i, r := range results {
		out[i] = r.Shape
	}
	return out
}

// diskPlacement is the nominal placement of a disk ROI.
type diskPlacement struct {
	name     string
	angle    float64
	distMM   float64
	radiusMM float64
	nominal  float64
}

var huDisks = []diskPlacement{
	{"Air", -90, 58.7, 5, -1000},
	{"PMP", -120, 58.7, 5, -200},
	{"LDPE", 180, 58.7, 5, -100},
	{"Poly", 120, 58.7, 5, -35},
	{"Acrylic", 60, 58.7, 5, 120},
	{"Delrin", 0, 58.7, 5, 340},
	{"Teflon", -60, 58.7, 5, 990},
}

var uniformityDisks = []diskPlacement{
	{"Top", 90, 53, 10, 0},
	{"Right", 0, 53, 10, 0},
	{"Bottom", -90, 53, 10, 0},
	{"Left", 180, 53, 10, 0},
	{"Center", 0, 0, 10, 0},
}

// DiskModuleResult is the outcome of a module measuring disk ROIs against
// nominal values (HU linearity and uniformity).
type DiskModuleResult struct {
	Name string
	ROIs []ROIResult
}

// AnalyzeHU measures the seven material inserts of the HU module.
func AnalyzeHU(img *mat.Dense, l geometry.Layout, tolerance float64) *DiskModuleResult {
	return analyzeDisks(ModuleHU, huDisks, img, l, tolerance)
}

// AnalyzeUniformity measures the four peripheral and the central ROI of the
// uniformity module against 0 HU.
func AnalyzeUniformity(img *mat.Dense, l geometry.Layout, tolerance float64) *DiskModuleResult {
	return analyzeDisks(ModuleUniformity, uniformityDisks, img, l, tolerance)
}

func analyzeDisks(name string, placements []diskPlacement, img *mat.Dense, l geometry.Layout, tolerance float64) *DiskModuleResult {
	res := &DiskModuleResult{Name: name}
	for _, s := range placements {
		d := roi.NewDisk(s.name, l, s.angle, s.distMM, s.radiusMM)
		res.ROIs = append(res.ROIs, measure(d, img, Within(s.nominal, tolerance)))
	}
	return res
}

// Values maps ROI names to measured values.
func (r *DiskModuleResult) Values() map[string]float64 {
	out := make(map[string]float64, len(r.ROIs))
	for _, m := range r.ROIs {
		out[m.Name] = m.Value
	}
	return out
}

func (r *DiskModuleResult) OverallPassed() bool { return allPassed(r.ROIs) }

func (r *DiskModuleResult) Regions() []roi.ROI { return shapes(r.ROIs) }

func (r *DiskModuleResult) Summary() Result {
	metrics := make(map[string]float64, len(r.ROIs))
	for _, m := range r.ROIs {
		metrics[m.Name] = m.Value
	}
	return Result{Module: r.Name, Passed: r.OverallPassed(), Metrics: metrics, ROIs: r.ROIs}
}

// contrastPlacement is the nominal placement of one low contrast target and
// its background pair.
type contrastPlacement struct {
	name     string
	angle    float64
	radiusMM float64
	innerMM  float64
	outerMM  float64
}

const (
	lowContrastDistMM     = 50.0
	lowContrastBgRadiusMM = 4.0
)

var lowContrastTargets = []contrastPlacement{
	{"15", -87.4, 6, 37, 63},
	{"9", -69.1, 3.5, 39, 61},
	{"8", -52.7, 3, 40, 60},
	{"7", -38.5, 2.5, 40.5, 59.5},
	{"6", -25.1, 2, 41.5, 58.5},
	{"5", -12.9, 1.5, 41.5, 58.5},
}

// ContrastResult is the measurement of one low contrast target.
type ContrastResult struct {
	Name             string  `yaml:"name"`
	X                float64 `yaml:"x"`
	Y                float64 `yaml:"y"`
	Contrast         float64 `yaml:"contrast"`
	ContrastConstant float64 `yaml:"contrastConstant"`
	Visible          bool    `yaml:"visible"`

	Shape roi.ContrastDisk `yaml:"-"`
}

// LowContrastResult is the outcome of the low contrast module.
type LowContrastResult struct {
	Targets  []ContrastResult
	Visible  int
	Required int
}

// AnalyzeLowContrast counts the targets whose contrast times diameter
// exceeds threshold.
func AnalyzeLowContrast(img *mat.Dense, l geometry.Layout, threshold float64, required int) *LowContrastResult {
	res := &LowContrastResult{Required: required}
	for _, s := range lowContrastTargets {
		cd := roi.ContrastDisk{
			Disk:  roi.NewDisk(s.name, l, s.angle, lowContrastDistMM, s.radiusMM),
			Inner: roi.NewDisk(s.name+" inner", l, s.angle, s.innerMM, lowContrastBgRadiusMM),
			Outer: roi.NewDisk(s.name+" outer", l, s.angle, s.outerMM, lowContrastBgRadiusMM),
		}
		constant := cd.ContrastConstant(img)
		t := ContrastResult{
			Name:             s.name,
			X:                cd.Center.X,
			Y:                cd.Center.Y,
			Contrast:         cd.Contrast(img),
			ContrastConstant: constant,
			Visible:          constant > threshold,
			Shape:            cd,
		}
		if t.Visible {
			res.Visible++
		}
		res.Targets = append(res.Targets, t)
	}
	return res
}

func (r *LowContrastResult) OverallPassed() bool { return AtLeast(r.Visible, r.Required) }

func (r *LowContrastResult) Regions() []roi.ROI {
	out := make([]roi.ROI, len(r.Targets))
	for i, t := range r.Targets {
		out[i] = t.Shape
	}
	return out
}

func (r *LowContrastResult) Summary() Result {
	metrics := map[string]float64{"visible": float64(r.Visible)}
	for _, t := range r.Targets {
		metrics["contrastConstant "+t.Name] = t.ContrastConstant
	}
	return Result{Module: ModuleLowContrast, Passed: r.OverallPassed(), Metrics: metrics}
}
