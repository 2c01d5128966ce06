package cbct

import (
	"errors"
	"math"
	"testing"

	"cbctqa/internal/logging"
	"cbctqa/pkg/config"
)

func TestIsReferenceCandidate(t *testing.T) {
	flat := make([]float64, 100)
	if IsReferenceCandidate(flat, 400, 100) {
		t.Error("Flat profile should not be a candidate")
	}

	inserts := make([]float64, 100)
	for i := 0; i < 10; i++ {
		inserts[i] = 1000
		inserts[50+i] = -1000
	}
	if !IsReferenceCandidate(inserts, 400, 100) {
		t.Error("Profile with dense and air inserts should be a candidate")
	}

	noisy := make([]float64, 100)
	copy(noisy, inserts)
	for i := 20; i < 45; i++ {
		noisy[i] = 300
	}
	if IsReferenceCandidate(noisy, 400, 100) {
		t.Error("Profile without a flat background should not be a candidate")
	}

	if IsReferenceCandidate(nil, 400, 100) {
		t.Error("Empty profile should not be a candidate")
	}
}

func TestWithinExtent(t *testing.T) {
	tests := []struct {
		i, n int
		want bool
	}{
		{0, 10, false},
		{1, 10, false},
		{2, 10, true},
		{8, 10, true},
		{9, 10, false},
		{-3, 10, false},
	}
	for _, tt := range tests {
		if got := withinExtent(tt.i, tt.n); got != tt.want {
			t.Errorf("withinExtent(%d, %d): expected %v, got %v", tt.i, tt.n, tt.want, got)
		}
	}
}

func TestOffset(t *testing.T) {
	tests := []struct {
		ref       int
		offset    float64
		thickness float64
		want      int
	}{
		{40, -65, 2, 8},
		{40, 30, 2, 55},
		{40, 30, 1, 70},
		{40, 5, 2, 42},
		{40, 7, 2, 44},
		{40, -5, 2, 38},
	}
	for _, tt := range tests {
		if got := Offset(tt.ref, tt.offset, tt.thickness); got != tt.want {
			t.Errorf("Offset(%d, %v, %v): expected %d, got %d", tt.ref, tt.offset, tt.thickness, tt.want, got)
		}
	}
}

func TestReferenceSliceMedian(t *testing.T) {
	stack := buildStack(30, []int{10, 12, 14}, 2, "")
	s := NewSelector(stack, config.DefaultConfig(), logging.Discard())

	ref, err := s.ReferenceSlice()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ref != 12 {
		t.Errorf("Expected reference slice 12, got %d", ref)
	}

	centers := s.Centers()
	if len(centers) != 15 {
		t.Fatalf("Expected a center for each of the 15 searched slices, got %d", len(centers))
	}
	for i, c := range centers {
		if i%2 != 0 {
			t.Errorf("Unexpected center for unsearched slice %d", i)
		}
		if math.Abs(c.X-phantomCenter) > 1 || math.Abs(c.Y-phantomCenter) > 1 {
			t.Errorf("Slice %d: expected center near (%v, %v), got %v", i, phantomCenter, phantomCenter, c)
		}
	}
}

func TestReferenceSliceExtent(t *testing.T) {
	cfg := config.DefaultConfig()

	last := NewSelector(buildStack(29, []int{28}, 2, ""), cfg, logging.Discard())
	if _, err := last.ReferenceSlice(); !IsCode(err, ErrorExtent) {
		t.Errorf("Expected extent error for the last slice, got %v", err)
	}

	first := NewSelector(buildStack(20, []int{0, 2}, 2, ""), cfg, logging.Discard())
	if _, err := first.ReferenceSlice(); !IsCode(err, ErrorExtent) {
		t.Errorf("Expected extent error for slice 1, got %v", err)
	}

	none := NewSelector(buildStack(10, nil, 2, ""), cfg, logging.Discard())
	if _, err := none.ReferenceSlice(); !IsCode(err, ErrorExtent) {
		t.Errorf("Expected extent error without candidates, got %v", err)
	}
}

func TestSelect(t *testing.T) {
	stack := buildStack(60, []int{38, 40, 42}, 2, "")
	idx, err := NewSelector(stack, config.DefaultConfig(), logging.Discard()).Select()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := SliceIndices{HU: 40, Uniformity: 8, SpatialResolution: 55, LowContrast: 25}
	if idx != want {
		t.Errorf("Expected %+v, got %+v", want, idx)
	}
}

func TestSelectElekta(t *testing.T) {
	stack := buildStack(80, []int{60}, 2, "elekta")
	idx, err := NewSelector(stack, config.DefaultConfig(), logging.Discard()).Select()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if idx.HU != 60 || idx.Uniformity != 5 || idx.SpatialResolution != 45 {
		t.Errorf("Unexpected indices %+v", idx)
	}
	if idx.LowContrast != -1 {
		t.Errorf("Expected no low contrast slice, got %d", idx.LowContrast)
	}
}

func TestSelectDependentOutOfRange(t *testing.T) {
	stack := buildStack(40, []int{20}, 2, "")
	_, err := NewSelector(stack, config.DefaultConfig(), logging.Discard()).Select()

	var ae *AnalysisError
	if !errors.As(err, &ae) {
		t.Fatalf("Expected an AnalysisError, got %v", err)
	}
	if ae.Code != ErrorExtent {
		t.Errorf("Expected code %s, got %s", ErrorExtent, ae.Code)
	}
	if ae.Module != ModuleUniformity {
		t.Errorf("Expected module %q, got %q", ModuleUniformity, ae.Module)
	}
	if ae.Slice != -12 {
		t.Errorf("Expected slice -12, got %d", ae.Slice)
	}
}

func TestSelectRejectsZeroThickness(t *testing.T) {
	stack := buildStack(10, nil, 0, "")
	_, err := NewSelector(stack, config.DefaultConfig(), logging.Discard()).Select()
	if !IsCode(err, ErrorInvalidInput) {
		t.Errorf("Expected invalid input error, got %v", err)
	}
}
