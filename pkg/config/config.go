// Package config provides configuration loading and management for cbctqa.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Elekta is the manufacturer string reported by Elekta scanners (CatPhan 503).
const Elekta = "ELEKTA"

// Varian is the manufacturer string reported by Varian scanners (CatPhan 504).
const Varian = "Varian Medical Systems"

// Variant holds the phantom geometry that differs between vendors
type Variant struct {
	// PhantomRadiusMM is the radius used to compute the expected phantom area
	PhantomRadiusMM float64 `yaml:"phantomRadiusMM"`

	// UniformityOffsetMM is the signed distance from the HU slice to the uniformity slice
	UniformityOffsetMM float64 `yaml:"uniformityOffsetMM"`

	// SpatialResOffsetMM is the signed distance from the HU slice to the line-pair slice
	SpatialResOffsetMM float64 `yaml:"spatialResOffsetMM"`

	// LowContrastOffsetMM is the signed distance from the HU slice to the low contrast slice
	LowContrastOffsetMM float64 `yaml:"lowContrastOffsetMM"`

	// MTFStartAngleDeg is where the line-pair profile starts, before roll correction
	MTFStartAngleDeg float64 `yaml:"mtfStartAngleDeg"`

	// MTFCCW reverses the line-pair profile direction
	MTFCCW bool `yaml:"mtfCCW"`

	// LowContrast is false for phantoms without a low contrast module
	LowContrast bool `yaml:"lowContrast"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Analysis tolerances and thresholds
	Analysis struct {
		// Threshold converts slices to binary when locating the phantom
		Threshold float64 `yaml:"threshold"`

		// HUTolerance applies to both HU linearity and uniformity ROIs
		HUTolerance float64 `yaml:"huTolerance"`

		// ScalingTolerance is the geometric line tolerance in mm
		ScalingTolerance float64 `yaml:"scalingTolerance"`

		// ThicknessTolerance is the slice thickness tolerance in mm
		ThicknessTolerance float64 `yaml:"thicknessTolerance"`

		// LowContrastTolerance is the number of low contrast ROIs that must be seen
		LowContrastTolerance int `yaml:"lowContrastTolerance"`

		// ContrastThreshold decides whether a low contrast ROI is seen
		ContrastThreshold float64 `yaml:"contrastThreshold"`

		// AirBubbleRadiusMM is the radius of the roll markers
		AirBubbleRadiusMM float64 `yaml:"airBubbleRadiusMM"`
	} `yaml:"analysis"`

	// Locator holds the acceptance bands of the phantom and marker searches
	Locator struct {
		AreaLower   float64 `yaml:"areaLower"`
		AreaUpper   float64 `yaml:"areaUpper"`
		FillLower   float64 `yaml:"fillLower"`
		FillUpper   float64 `yaml:"fillUpper"`
		MarkerLower float64 `yaml:"markerLower"`
		MarkerUpper float64 `yaml:"markerUpper"`
	} `yaml:"locator"`

	// Selector holds the HU slice search parameters
	Selector struct {
		ProfileRadiusMM float64 `yaml:"profileRadiusMM"`
		WidthRatio      float64 `yaml:"widthRatio"`
		NumProfiles     int     `yaml:"numProfiles"`
		ContrastHU      float64 `yaml:"contrastHU"`
		FlatnessHU      float64 `yaml:"flatnessHU"`
		Step            int     `yaml:"step"`
	} `yaml:"selector"`

	// Thickness holds the wire ramp calibration constants
	Thickness struct {
		WireFactor  float64 `yaml:"wireFactor"`
		RampDivisor float64 `yaml:"rampDivisor"`
	} `yaml:"thickness"`

	// MTF holds the line-pair profile parameters
	MTF struct {
		RadiusMM      float64 `yaml:"radiusMM"`
		WidthRatio    float64 `yaml:"widthRatio"`
		SamplingRatio float64 `yaml:"samplingRatio"`
		NumProfiles   int     `yaml:"numProfiles"`
		Cutoff        float64 `yaml:"cutoff"`
		MaxRepeat     int     `yaml:"maxRepeat"`
		MinDistance   float64 `yaml:"minDistance"`
		PeakThreshold float64 `yaml:"peakThreshold"`
		Peaks         int     `yaml:"peaks"`
	} `yaml:"mtf"`

	// Variants maps a manufacturer string to its phantom geometry.
	// The "default" entry is used for unknown manufacturers.
	Variants map[string]Variant `yaml:"variants"`

	// Processing parameters
	Processing struct {
		// NumCores bounds how many scans are analyzed at once in batch mode
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// OverlayDir receives diagnostic images when not empty
		OverlayDir string `yaml:"overlayDir"`

		// ReportFile receives the YAML report when not empty
		ReportFile string `yaml:"reportFile"`
	} `yaml:"output"`
}

// DefaultVariant is the key of the fallback variant.
const DefaultVariant = "default"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Analysis.Threshold = -600
	cfg.Analysis.HUTolerance = 40
	cfg.Analysis.ScalingTolerance = 1
	cfg.Analysis.ThicknessTolerance = 0.2
	cfg.Analysis.LowContrastTolerance = 1
	cfg.Analysis.ContrastThreshold = 15
	cfg.Analysis.AirBubbleRadiusMM = 6

	cfg.Locator.AreaLower = 0.93
	cfg.Locator.AreaUpper = 1.07
	cfg.Locator.FillLower = 0.9
	cfg.Locator.FillUpper = 1.02
	cfg.Locator.MarkerLower = 0.5
	cfg.Locator.MarkerUpper = 1.5

	cfg.Selector.ProfileRadiusMM = 59
	cfg.Selector.WidthRatio = 0.05
	cfg.Selector.NumProfiles = 5
	cfg.Selector.ContrastHU = 400
	cfg.Selector.FlatnessHU = 100
	cfg.Selector.Step = 2

	cfg.Thickness.WireFactor = 0.42
	cfg.Thickness.RampDivisor = 3

	cfg.MTF.RadiusMM = 47
	cfg.MTF.WidthRatio = 0.04
	cfg.MTF.SamplingRatio = 2
	cfg.MTF.NumProfiles = 20
	cfg.MTF.Cutoff = 0.34
	cfg.MTF.MaxRepeat = 12
	cfg.MTF.MinDistance = 0.025
	cfg.MTF.PeakThreshold = 0.05
	cfg.MTF.Peaks = 17

	cfg.Variants = map[string]Variant{
		DefaultVariant: {
			PhantomRadiusMM:     101,
			UniformityOffsetMM:  -65,
			SpatialResOffsetMM:  30,
			LowContrastOffsetMM: -30,
			MTFStartAngleDeg:    180,
			MTFCCW:              true,
			LowContrast:         true,
		},
		Elekta: {
			PhantomRadiusMM:     98.5,
			UniformityOffsetMM:  -110,
			SpatialResOffsetMM:  -30,
			LowContrastOffsetMM: -30,
			MTFStartAngleDeg:    0,
			MTFCCW:              false,
			LowContrast:         false,
		},
	}

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Output.Verbose = false
	cfg.Output.OverlayDir = ""
	cfg.Output.ReportFile = ""

	return cfg
}

// Variant returns the phantom geometry for a manufacturer. Matching is
// case-insensitive; unknown manufacturers get the default variant.
func (c *Config) Variant(manufacturer string) Variant {
	for name, v := range c.Variants {
		if name != DefaultVariant && strings.EqualFold(strings.TrimSpace(manufacturer), name) {
			return v
		}
	}
	return c.Variants[DefaultVariant]
}

// Validate checks that the configuration can drive an analysis
func (c *Config) Validate() error {
	if c.Analysis.AirBubbleRadiusMM <= 0 {
		return fmt.Errorf("airBubbleRadiusMM must be positive")
	}
	if c.Locator.AreaLower >= c.Locator.AreaUpper {
		return fmt.Errorf("locator area band is empty: %v..%v", c.Locator.AreaLower, c.Locator.AreaUpper)
	}
	if c.Locator.FillLower >= c.Locator.FillUpper {
		return fmt.Errorf("locator fill band is empty: %v..%v", c.Locator.FillLower, c.Locator.FillUpper)
	}
	if c.Selector.Step < 1 {
		return fmt.Errorf("selector step must be at least 1")
	}
	if c.MTF.Peaks < 1 || c.MTF.MaxRepeat < 1 {
		return fmt.Errorf("mtf peaks and maxRepeat must be positive")
	}
	if _, ok := c.Variants[DefaultVariant]; !ok {
		return fmt.Errorf("variants must contain a %q entry", DefaultVariant)
	}
	for name, v := range c.Variants {
		if v.PhantomRadiusMM <= 0 {
			return fmt.Errorf("variant %q: phantomRadiusMM must be positive", name)
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
