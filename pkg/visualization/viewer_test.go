package visualization

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"cbctqa/pkg/cbct"
	"cbctqa/pkg/geometry"
	"cbctqa/pkg/roi"
)

// createTestSlice creates a size x size slice filled with v
func createTestSlice(size int, v float64) *mat.Dense {
	px := mat.NewDense(size, size, nil)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			px.Set(r, c, v)
		}
	}
	return px
}

type sliceSource []*mat.Dense

func (s sliceSource) At(i int) *mat.Dense { return s[i] }

func TestNewViewer(t *testing.T) {
	v := NewViewer(0, "")
	if v.Scale != 1 {
		t.Errorf("Expected scale 1, got %d", v.Scale)
	}
	if v.Format != "png" {
		t.Errorf("Expected png format, got %s", v.Format)
	}
	if v.Level != 0 || v.Width != 2000 {
		t.Errorf("Expected window 0/2000, got %v/%v", v.Level, v.Width)
	}
}

func TestRenderWindow(t *testing.T) {
	px := mat.NewDense(2, 3, []float64{
		-2000, -1000, 0,
		1000, 3000, 500,
	})
	c := NewViewer(2, "png").Render(px)

	b := c.Image().Bounds()
	if b.Dx() != 6 || b.Dy() != 4 {
		t.Fatalf("Expected 6x4 canvas, got %dx%d", b.Dx(), b.Dy())
	}

	tests := []struct {
		x, y int
		want uint8
	}{
		{0, 0, 0},
		{2, 0, 0},
		{4, 0, 127},
		{0, 2, 255},
		{3, 3, 255},
		{5, 3, 191},
	}
	for _, tt := range tests {
		got := c.Image().NRGBAAt(tt.x, tt.y)
		if got.R != tt.want || got.G != tt.want || got.B != tt.want {
			t.Errorf("Pixel (%d, %d): expected gray %d, got %v", tt.x, tt.y, tt.want, got)
		}
	}
}

func TestDrawROI(t *testing.T) {
	v := NewViewer(1, "png")

	c := v.Render(createTestSlice(40, 0))
	c.DrawROI(roi.Disk{Center: geometry.Pt(20, 20), Radius: 5}, PassColor)
	if got := c.Image().NRGBAAt(25, 20); got != PassColor {
		t.Errorf("Expected disk outline at (25, 20), got %v", got)
	}
	if got := c.Image().NRGBAAt(20, 20); got == PassColor {
		t.Error("Disk center should not be drawn")
	}
	for _, p := range [][2]int{{27, 20}, {23, 20}} {
		if got := c.Image().NRGBAAt(p[0], p[1]); got == PassColor {
			t.Errorf("Expected a one pixel outline, but (%d, %d) was drawn", p[0], p[1])
		}
	}

	c = v.Render(createTestSlice(40, 0))
	c.DrawROI(roi.Rectangle{Center: geometry.Pt(20, 20), Width: 10, Height: 6}, FailColor)
	for _, p := range [][2]int{{15, 17}, {25, 23}, {20, 17}, {15, 20}} {
		if got := c.Image().NRGBAAt(p[0], p[1]); got != FailColor {
			t.Errorf("Expected rectangle outline at %v, got %v", p, got)
		}
	}

	c = v.Render(createTestSlice(40, 0))
	c.DrawROI(roi.ContrastDisk{
		Disk:  roi.Disk{Center: geometry.Pt(20, 20), Radius: 3},
		Inner: roi.Disk{Center: geometry.Pt(10, 20), Radius: 2},
		Outer: roi.Disk{Center: geometry.Pt(30, 20), Radius: 2},
	}, PassColor)
	if got := c.Image().NRGBAAt(23, 20); got != PassColor {
		t.Errorf("Expected target outline, got %v", got)
	}
	if got := c.Image().NRGBAAt(12, 20); got != BackColor {
		t.Errorf("Expected background outline, got %v", got)
	}
}

func TestDrawLine(t *testing.T) {
	c := NewViewer(1, "png").Render(createTestSlice(20, 0))
	c.DrawLine(geometry.Pt(2, 2), geometry.Pt(12, 2), NeutralColor)
	for x := 2; x <= 12; x++ {
		if got := c.Image().NRGBAAt(x, 2); got != NeutralColor {
			t.Errorf("Expected line pixel at (%d, 2), got %v", x, got)
		}
	}
	c.DrawLine(geometry.Pt(5, 5), geometry.Pt(5, 5), NeutralColor)
	if got := c.Image().NRGBAAt(5, 5); got != NeutralColor {
		t.Error("Expected a degenerate line to draw one pixel")
	}
}

func TestLabel(t *testing.T) {
	c := NewViewer(1, "png").Render(createTestSlice(60, -1000))
	c.Label(geometry.Pt(5, 20), "Air", PassColor)

	drawn := 0
	for y := 5; y < 25; y++ {
		for x := 5; x < 30; x++ {
			if c.Image().NRGBAAt(x, y) != (color.NRGBA{A: 255}) {
				drawn++
			}
		}
	}
	if drawn == 0 {
		t.Error("Expected the label to be drawn")
	}
}

func TestSaveCanvas(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	tempDir := t.TempDir()

	c := NewViewer(1, "jpg").Render(createTestSlice(16, 0))
	for _, name := range []string{"slice.jpg", "nested/slice.png"} {
		filename := filepath.Join(tempDir, name)
		if err := c.Save(filename); err != nil {
			t.Fatalf("Failed to save %s: %v", name, err)
		}
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Saved file does not exist: %s", filename)
		}
	}
}

func TestSaveOverlays(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	tempDir := t.TempDir()

	px := createTestSlice(256, 0)
	l := geometry.Layout{Center: geometry.Pt(128, 128), MMPerPixel: 1}
	report := &cbct.Report{
		Slices:     cbct.SliceIndices{HU: 1, Uniformity: 0, SpatialResolution: 2, LowContrast: -1},
		HU:         cbct.AnalyzeHU(px, l, 40),
		Uniformity: cbct.AnalyzeUniformity(px, l, 40),
	}

	written, err := NewViewer(2, "png").SaveOverlays(sliceSource{px, px, px}, report, tempDir)
	if err != nil {
		t.Fatalf("Failed to save overlays: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("Expected 2 overlays, got %v", written)
	}
	for _, name := range []string{"hu_geometry_thickness.png", "uniformity.png"} {
		if _, err := os.Stat(filepath.Join(tempDir, name)); os.IsNotExist(err) {
			t.Errorf("Expected overlay %s", name)
		}
	}
	if _, err := os.Stat(filepath.Join(tempDir, "spatial_resolution.png")); !os.IsNotExist(err) {
		t.Error("No spatial resolution overlay expected without an MTF result")
	}
}
