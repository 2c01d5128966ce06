package imgproc

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// createTestImage creates an image with the specified dimensions and pattern
func createTestImage(rows, cols int, pattern func(r, c int) float64) *mat.Dense {
	img := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			img.Set(r, c, pattern(r, c))
		}
	}
	return img
}

func disk(cr, cc, radius float64) func(r, c int) bool {
	return func(r, c int) bool {
		dr, dc := float64(r)-cr, float64(c)-cc
		return dr*dr+dc*dc <= radius*radius
	}
}

func TestBinarize(t *testing.T) {
	img := createTestImage(4, 4, func(r, c int) float64 { return float64(r*4 + c) })
	m := Binarize(img, 8)

	if m.Count() != 8 {
		t.Errorf("Expected 8 foreground pixels, got %d", m.Count())
	}
	if m.At(1, 3) {
		t.Error("Expected pixel value 7 to be background")
	}
	if !m.At(2, 0) {
		t.Error("Expected pixel value 8 (equal to threshold) to be foreground")
	}

	inv := m.Invert()
	if inv.Count() != 8 || inv.At(2, 0) {
		t.Error("Inverted mask does not complement the original")
	}
}

func TestLabelEightConnected(t *testing.T) {
	m := NewMask(6, 6)
	// two pixels touching only at a corner belong to one component
	m.Set(0, 0, true)
	m.Set(1, 1, true)
	// a separate 2x2 block
	m.Set(4, 4, true)
	m.Set(4, 5, true)
	m.Set(5, 4, true)
	m.Set(5, 5, true)

	labels, regions := Label(m)
	if len(regions) != 2 {
		t.Fatalf("Expected 2 regions, got %d", len(regions))
	}
	if regions[0].Area != 2 || regions[1].Area != 4 {
		t.Errorf("Expected areas 2 and 4, got %d and %d", regions[0].Area, regions[1].Area)
	}
	if labels.Data[1*6+1] != labels.Data[0] {
		t.Error("Diagonal neighbours should share a label")
	}

	c := regions[1].Centroid()
	if c.X != 4.5 || c.Y != 4.5 {
		t.Errorf("Expected centroid (4.5, 4.5), got (%v, %v)", c.X, c.Y)
	}
	if regions[1].FillRatio() != 1 {
		t.Errorf("Expected a square to fill its bounding box, got %v", regions[1].FillRatio())
	}
	if labels.Mask(2).Count() != 4 {
		t.Errorf("Expected label mask of 4 pixels, got %d", labels.Mask(2).Count())
	}
}

func TestDiskFillRatio(t *testing.T) {
	in := disk(50, 50, 30)
	m := NewMask(101, 101)
	for r := 0; r < 101; r++ {
		for c := 0; c < 101; c++ {
			m.Set(r, c, in(r, c))
		}
	}
	_, regions := Label(m)
	if len(regions) != 1 {
		t.Fatalf("Expected 1 region, got %d", len(regions))
	}
	// the disk spans rows and columns 20..80
	ratio := regions[0].FillRatio()
	if want := float64(m.Count()) / (61 * 61); ratio != want {
		t.Errorf("Expected fill ratio %v, got %v", want, ratio)
	}
	// a digitized disk fills slightly less than pi/4
	if !(ratio > 0.9*math.Pi/4 && ratio < 1.02*math.Pi/4) {
		t.Errorf("Expected fill ratio inside the circle band, got %v", ratio)
	}
}

func TestFillHoles(t *testing.T) {
	m := NewMask(7, 7)
	for r := 1; r <= 5; r++ {
		for c := 1; c <= 5; c++ {
			if r == 1 || r == 5 || c == 1 || c == 5 {
				m.Set(r, c, true)
			}
		}
	}
	filled := FillHoles(m)
	if filled.Count() != 25 {
		t.Errorf("Expected 25 pixels after filling a 5x5 ring, got %d", filled.Count())
	}
	if filled.At(0, 0) {
		t.Error("Border background must stay background")
	}
}

func TestMedianFilterRemovesSaltNoise(t *testing.T) {
	img := createTestImage(5, 5, func(r, c int) float64 { return 10 })
	img.Set(2, 2, 1000)

	out := MedianFilter(img, 3)
	if out.At(2, 2) != 10 {
		t.Errorf("Expected outlier to be removed, got %v", out.At(2, 2))
	}
	if img.At(2, 2) != 1000 {
		t.Error("MedianFilter must not modify its input")
	}
}

func TestReflectIndex(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{-1, 5, 0},
		{-2, 5, 1},
		{5, 5, 4},
		{6, 5, 3},
		{2, 5, 2},
		{-3, 1, 0},
	}
	for _, tt := range tests {
		if got := ReflectIndex(tt.i, tt.n); got != tt.want {
			t.Errorf("ReflectIndex(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestCombine(t *testing.T) {
	a := createTestImage(2, 2, func(r, c int) float64 { return 1 })
	b := createTestImage(2, 2, func(r, c int) float64 { return 3 })
	c := createTestImage(2, 2, func(r, c int) float64 { return 8 })

	tests := []struct {
		mode CombineMode
		want float64
	}{
		{CombineMean, 4},
		{CombineMax, 8},
		{CombineMedian, 3},
	}
	for _, tt := range tests {
		out, err := Combine([]*mat.Dense{a, b, c}, tt.mode)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", tt.mode, err)
		}
		if out.At(1, 1) != tt.want {
			t.Errorf("%v: expected %v, got %v", tt.mode, tt.want, out.At(1, 1))
		}
	}

	if _, err := Combine(nil, CombineMean); err == nil {
		t.Error("Expected error combining no images")
	}
	if _, err := Combine([]*mat.Dense{a, mat.NewDense(3, 3, nil)}, CombineMean); err == nil {
		t.Error("Expected error combining mismatched images")
	}
}

func TestMedian(t *testing.T) {
	if Median([]float64{3, 1, 2}) != 2 {
		t.Error("Expected odd-length median 2")
	}
	if Median([]float64{4, 1, 2, 3}) != 2.5 {
		t.Error("Expected even-length median 2.5")
	}
	if Median(nil) != 0 {
		t.Error("Expected median of empty slice to be 0")
	}
}
