package cbct

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Result is the flattened outcome of one module.
type Result struct {
	Module  string             `yaml:"module"`
	Slice   int                `yaml:"slice"`
	Passed  bool               `yaml:"passed"`
	Metrics map[string]float64 `yaml:"metrics,omitempty"`
	ROIs    []ROIResult        `yaml:"rois,omitempty"`
	Lines   []LineResult       `yaml:"lines,omitempty"`
	Error   string             `yaml:"error,omitempty"`
}

// Report aggregates the outcome of an analysis session
type Report struct {
	// RunID uniquely identifies the analysis run
	RunID string `yaml:"runId"`

	// CreatedAt is when the report was assembled
	CreatedAt time.Time `yaml:"createdAt"`

	// Duration is the wall time of the analysis
	Duration time.Duration `yaml:"duration"`

	// Manufacturer is the scanner vendor the phantom variant was chosen from
	Manufacturer string `yaml:"manufacturer"`

	// NumSlices, MMPerPixel and SliceThickness describe the stack
	NumSlices      int     `yaml:"numSlices"`
	MMPerPixel     float64 `yaml:"mmPerPixel"`
	SliceThickness float64 `yaml:"sliceThickness"`

	// Slices are the module slice positions
	Slices SliceIndices `yaml:"slices"`

	// RollDeg is the phantom roll in degrees
	RollDeg float64 `yaml:"rollDeg"`

	// Results holds one entry per analyzed module, in a fixed order
	Results []Result `yaml:"results"`

	// Warnings are the non-fatal conditions of the run
	Warnings []Warning `yaml:"warnings,omitempty"`

	// Typed module outcomes; nil when the module failed or was skipped
	HU          *DiskModuleResult  `yaml:"-"`
	Uniformity  *DiskModuleResult  `yaml:"-"`
	LowContrast *LowContrastResult `yaml:"-"`
	MTF         *MTFResult         `yaml:"-"`
	Geometry    *GeometryResult    `yaml:"-"`
	Thickness   *ThicknessResult   `yaml:"-"`

	// Errors maps module names to their failure
	Errors map[string]error `yaml:"-"`
}

var moduleOrder = []string{
	ModuleHU,
	ModuleUniformity,
	ModuleLowContrast,
	ModuleSpatialResolution,
	ModuleGeometry,
	ModuleThickness,
}

func newReport(a *Analysis) *Report {
	return &Report{
		RunID:          newRunID(),
		CreatedAt:      time.Now(),
		Manufacturer:   a.store.Manufacturer(),
		NumSlices:      a.store.Len(),
		MMPerPixel:     a.store.MMPerPixel(),
		SliceThickness: a.store.SliceThickness(),
		Slices:         a.indices,
		RollDeg:        a.roll,
		Warnings:       append([]Warning(nil), a.warnings...),
		Errors:         make(map[string]error),
	}
}

func (r *Report) add(module string, slice int, o Outcome) {
	res := o.Summary()
	res.Slice = slice
	r.Results = append(r.Results, res)

	switch v := o.(type) {
	case *DiskModuleResult:
		if module == ModuleHU {
			r.HU = v
		} else {
			r.Uniformity = v
		}
	case *LowContrastResult:
		r.LowContrast = v
	case *MTFResult:
		r.MTF = v
	case *GeometryResult:
		r.Geometry = v
	case *ThicknessResult:
		r.Thickness = v
	}
}

func (r *Report) addError(module string, slice int, err error) {
	r.Errors[module] = err
	r.Results = append(r.Results, Result{Module: module, Slice: slice, Error: err.Error()})
}

func (r *Report) sortResults() {
	rank := make(map[string]int, len(moduleOrder))
	for i, m := range moduleOrder {
		rank[m] = i
	}
	sort.SliceStable(r.Results, func(i, j int) bool {
		return rank[r.Results[i].Module] < rank[r.Results[j].Module]
	})
}

// Passed is true when every analyzed module passed and none failed.
func (r *Report) Passed() bool {
	if len(r.Errors) > 0 {
		return false
	}
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// Outcomes returns the successful module outcomes keyed by module name.
func (r *Report) Outcomes() map[string]Outcome {
	out := make(map[string]Outcome)
	if r.HU != nil {
		out[ModuleHU] = r.HU
	}
	if r.Uniformity != nil {
		out[ModuleUniformity] = r.Uniformity
	}
	if r.LowContrast != nil {
		out[ModuleLowContrast] = r.LowContrast
	}
	if r.MTF != nil {
		out[ModuleSpatialResolution] = r.MTF
	}
	if r.Geometry != nil {
		out[ModuleGeometry] = r.Geometry
	}
	if r.Thickness != nil {
		out[ModuleThickness] = r.Thickness
	}
	return out
}

func formatValues(rois []ROIResult) string {
	parts := make([]string, len(rois))
	for i, roi := range rois {
		parts[i] = fmt.Sprintf("%s: %.1f", roi.Name, roi.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// String renders the report in the plain text layout QA staff are used to.
func (r *Report) String() string {
	na := func(module string) string {
		if err, ok := r.Errors[module]; ok {
			return fmt.Sprintf("failed (%v)", err)
		}
		return "n/a"
	}

	var b strings.Builder
	b.WriteString("\n - CBCT QA Test - \n")

	if r.HU != nil {
		fmt.Fprintf(&b, "HU Regions: %s\n", formatValues(r.HU.ROIs))
		fmt.Fprintf(&b, "HU Passed?: %t\n", r.HU.OverallPassed())
	} else {
		fmt.Fprintf(&b, "HU Regions: %s\n", na(ModuleHU))
	}

	if r.Uniformity != nil {
		fmt.Fprintf(&b, "Uniformity: %s\n", formatValues(r.Uniformity.ROIs))
		fmt.Fprintf(&b, "Uniformity Passed?: %t\n", r.Uniformity.OverallPassed())
	} else {
		fmt.Fprintf(&b, "Uniformity: %s\n", na(ModuleUniformity))
	}

	if r.MTF != nil {
		fmt.Fprintf(&b, "MTF 80%% (lp/mm): %.2f\n", r.MTF.Percent(80))
	} else {
		fmt.Fprintf(&b, "MTF 80%% (lp/mm): %s\n", na(ModuleSpatialResolution))
	}

	if r.Geometry != nil {
		fmt.Fprintf(&b, "Geometric Line Average (mm): %.2f\n", r.Geometry.AvgLineLength())
		fmt.Fprintf(&b, "Geometry Passed?: %t\n", r.Geometry.OverallPassed())
	} else {
		fmt.Fprintf(&b, "Geometric Line Average (mm): %s\n", na(ModuleGeometry))
	}

	if r.LowContrast != nil {
		fmt.Fprintf(&b, "Low Contrast ROIs visible: %d\n", r.LowContrast.Visible)
		fmt.Fprintf(&b, "Low Contrast Passed? %t\n", r.LowContrast.OverallPassed())
	} else {
		fmt.Fprintf(&b, "Low Contrast ROIs visible: %s\n", na(ModuleLowContrast))
	}

	if r.Thickness != nil {
		fmt.Fprintf(&b, "Slice Thickness (mm): %.2f\n", r.Thickness.Average)
		fmt.Fprintf(&b, "Slice Thickness Passed? %t\n", r.Thickness.OverallPassed())
	} else {
		fmt.Fprintf(&b, "Slice Thickness (mm): %s\n", na(ModuleThickness))
	}

	fmt.Fprintf(&b, "Phantom roll (deg): %.2f\n", r.RollDeg)
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	return b.String()
}

// YAML serializes the report.
func (r *Report) YAML() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("error marshaling report: %w", err)
	}
	return data, nil
}

// SaveYAML writes the report to path, creating parent directories.
func (r *Report) SaveYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating report directory: %w", err)
	}
	data, err := r.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing report: %w", err)
	}
	return nil
}
