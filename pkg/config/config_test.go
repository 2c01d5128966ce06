package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Analysis.Threshold != -600 {
		t.Errorf("Expected threshold -600, got %v", cfg.Analysis.Threshold)
	}
	if cfg.Analysis.HUTolerance != 40 {
		t.Errorf("Expected HU tolerance 40, got %v", cfg.Analysis.HUTolerance)
	}
	if cfg.MTF.Peaks != 17 {
		t.Errorf("Expected 17 line-pair peaks, got %d", cfg.MTF.Peaks)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
}

func TestVariantSelection(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		manufacturer string
		radius       float64
		lowContrast  bool
	}{
		{"ELEKTA", 98.5, false},
		{"elekta ", 98.5, false},
		{Varian, 101, true},
		{"", 101, true},
		{"Some Other Vendor", 101, true},
	}

	for _, tt := range tests {
		v := cfg.Variant(tt.manufacturer)
		if v.PhantomRadiusMM != tt.radius {
			t.Errorf("%q: expected radius %v, got %v", tt.manufacturer, tt.radius, v.PhantomRadiusMM)
		}
		if v.LowContrast != tt.lowContrast {
			t.Errorf("%q: expected lowContrast %v, got %v", tt.manufacturer, tt.lowContrast, v.LowContrast)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got error: %v", err)
	}
	if cfg.Analysis.ScalingTolerance != 1 {
		t.Errorf("Expected default scaling tolerance, got %v", cfg.Analysis.ScalingTolerance)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cbctqa.yaml")

	cfg := DefaultConfig()
	cfg.Analysis.HUTolerance = 25
	cfg.Output.Verbose = true

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Analysis.HUTolerance != 25 {
		t.Errorf("Expected HU tolerance 25, got %v", loaded.Analysis.HUTolerance)
	}
	if !loaded.Output.Verbose {
		t.Error("Expected verbose output to round-trip")
	}
	if loaded.Variant(Elekta).UniformityOffsetMM != -110 {
		t.Errorf("Expected Elekta uniformity offset -110, got %v", loaded.Variant(Elekta).UniformityOffsetMM)
	}
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := []byte("analysis:\n  thicknessTolerance: 0.5\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Analysis.ThicknessTolerance != 0.5 {
		t.Errorf("Expected thickness tolerance 0.5, got %v", cfg.Analysis.ThicknessTolerance)
	}
	if cfg.Analysis.Threshold != -600 {
		t.Errorf("Expected untouched threshold to keep its default, got %v", cfg.Analysis.Threshold)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	data := []byte("locator:\n  areaLower: 1.2\n  areaUpper: 1.1\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for empty area band, got nil")
	}
}
