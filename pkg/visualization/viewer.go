// Package visualization renders analyzed slices with their ROIs drawn on top,
// for visual review of an analysis run.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
	"gonum.org/v1/gonum/mat"

	"cbctqa/pkg/cbct"
	"cbctqa/pkg/geometry"
	"cbctqa/pkg/roi"
)

// Outline colors
var (
	PassColor    = color.NRGBA{R: 0, G: 200, B: 0, A: 255}
	FailColor    = color.NRGBA{R: 230, G: 0, B: 0, A: 255}
	NeutralColor = color.NRGBA{R: 0, G: 170, B: 255, A: 255}
	BackColor    = color.NRGBA{R: 255, G: 204, B: 0, A: 255}
)

// Viewer renders slices through an HU window, upscaled by an integer factor.
type Viewer struct {
	// Level and Width define the HU display window
	Level float64
	Width float64

	// Scale is the integer upscaling applied before drawing outlines
	Scale int

	// Format is the output image format, "png" or "jpg"
	Format string
}

// NewViewer creates a viewer with a (-1000, 1000) HU window.
func NewViewer(scale int, format string) *Viewer {
	if scale < 1 {
		scale = 1
	}
	if format == "" {
		format = "png"
	}
	return &Viewer{Level: 0, Width: 2000, Scale: scale, Format: format}
}

// Canvas is a rendered slice that outlines can be drawn on, in slice pixel
// coordinates.
type Canvas struct {
	img   *image.NRGBA
	scale float64
}

// Render windows the slice to 8-bit gray and upscales it.
func (v *Viewer) Render(px *mat.Dense) *Canvas {
	rows, cols := px.Dims()
	gray := image.NewGray(image.Rect(0, 0, cols, rows))
	lo := v.Level - v.Width/2
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			g := (px.At(y, x) - lo) / v.Width * 255
			gray.SetGray(x, y, color.Gray{Y: uint8(math.Max(0, math.Min(255, g)))})
		}
	}

	var img *image.NRGBA
	if v.Scale > 1 {
		img = imaging.Resize(gray, cols*v.Scale, rows*v.Scale, imaging.NearestNeighbor)
	} else {
		img = imaging.Clone(gray)
	}
	return &Canvas{img: img, scale: float64(v.Scale)}
}

// Image returns the rendered image.
func (c *Canvas) Image() *image.NRGBA { return c.img }

// toCanvas maps a slice pixel center to canvas coordinates.
func (c *Canvas) toCanvas(p geometry.Point) (float64, float64) {
	return (p.X+0.5)*c.scale - 0.5, (p.Y+0.5)*c.scale - 0.5
}

// toVector maps a slice pixel center to rasterizer coordinates, where pixel
// (x, y) spans [x, x+1) x [y, y+1).
func (c *Canvas) toVector(p geometry.Point) (float32, float32) {
	return float32((p.X + 0.5) * c.scale), float32((p.Y + 0.5) * c.scale)
}

func (c *Canvas) rasterizer() *vector.Rasterizer {
	b := c.img.Bounds()
	return vector.NewRasterizer(b.Dx(), b.Dy())
}

// fill paints every pixel the path covers by at least half.
func (c *Canvas) fill(z *vector.Rasterizer, col color.NRGBA) {
	mask := image.NewAlpha(c.img.Bounds())
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	b := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.AlphaAt(x, y).A >= 0x80 {
				c.img.SetNRGBA(x, y, col)
			}
		}
	}
}

// DrawLine draws a straight segment between two slice points, one canvas
// pixel wide with square caps.
func (c *Canvas) DrawLine(a, b geometry.Point, col color.NRGBA) {
	const half = 0.5
	x0, y0 := c.toVector(a)
	x1, y1 := c.toVector(b)

	var ux, uy float32 = 1, 0
	if length := float32(math.Hypot(float64(x1-x0), float64(y1-y0))); length > 0 {
		ux, uy = (x1-x0)/length, (y1-y0)/length
	}
	x0, y0 = x0-ux*half, y0-uy*half
	x1, y1 = x1+ux*half, y1+uy*half
	nx, ny := -uy*half, ux*half

	z := c.rasterizer()
	z.MoveTo(x0+nx, y0+ny)
	z.LineTo(x1+nx, y1+ny)
	z.LineTo(x1-nx, y1-ny)
	z.LineTo(x0-nx, y0-ny)
	z.ClosePath()
	c.fill(z, col)
}

// DrawCircle draws a circle outline of radius pixels around center.
func (c *Canvas) DrawCircle(center geometry.Point, radius float64, col color.NRGBA) {
	const half = 0.5
	cx, cy := c.toVector(center)
	r := radius * c.scale
	n := int(math.Max(16, math.Ceil(2*math.Pi*(r+half))))

	z := c.rasterizer()
	polygon(z, cx, cy, r+half, n, false)
	if r > half {
		// opposite winding leaves the inside empty
		polygon(z, cx, cy, r-half, n, true)
	}
	c.fill(z, col)
}

// polygon adds a closed regular n-gon of radius r to the path.
func polygon(z *vector.Rasterizer, cx, cy float32, r float64, n int, reverse bool) {
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		if reverse {
			a = -a
		}
		x, y := cx+float32(r*math.Cos(a)), cy+float32(r*math.Sin(a))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
}

// DrawROI outlines an ROI.
func (c *Canvas) DrawROI(r roi.ROI, col color.NRGBA) {
	switch s := r.(type) {
	case roi.Disk:
		c.DrawCircle(s.Center, s.Radius, col)
	case roi.ContrastDisk:
		c.DrawCircle(s.Center, s.Radius, col)
		c.DrawCircle(s.Inner.Center, s.Inner.Radius, BackColor)
		c.DrawCircle(s.Outer.Center, s.Outer.Radius, BackColor)
	case roi.Rectangle:
		corners := s.Corners()
		for i := range corners {
			c.DrawLine(corners[i], corners[(i+1)%len(corners)], col)
		}
	}
}

// Label writes text with its baseline starting at p.
func (c *Canvas) Label(p geometry.Point, text string, col color.NRGBA) {
	x, y := c.toCanvas(p)
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(x), int(y)),
	}
	d.DrawString(text)
}

// Save writes the canvas, choosing the encoder from the file extension.
func (c *Canvas) Save(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return imaging.Save(c.img, filename, imaging.JPEGQuality(90))
}

func verdict(ok bool) color.NRGBA {
	if ok {
		return PassColor
	}
	return FailColor
}

// SliceSource provides slice pixels by stack index
type SliceSource interface {
	At(i int) *mat.Dense
}

// SaveOverlays writes one image per analyzed slice with the ROIs of the
// modules read from it, and returns the files written. Modules that failed
// are left out.
func (v *Viewer) SaveOverlays(src SliceSource, r *cbct.Report, outputDir string) ([]string, error) {
	var written []string
	save := func(name string, c *Canvas) error {
		filename := filepath.Join(outputDir, fmt.Sprintf("%s.%s", name, v.Format))
		if err := c.Save(filename); err != nil {
			return fmt.Errorf("error saving overlay %s: %w", name, err)
		}
		written = append(written, filename)
		return nil
	}

	if r.HU != nil || r.Geometry != nil || r.Thickness != nil {
		c := v.Render(src.At(r.Slices.HU))
		if r.HU != nil {
			for _, m := range r.HU.ROIs {
				c.DrawROI(m.Shape, verdict(m.Passed))
				c.Label(m.Shape.Position(), m.Name, verdict(m.Passed))
			}
		}
		if r.Geometry != nil {
			for _, n := range r.Geometry.Nodes {
				c.DrawROI(n.Shape, NeutralColor)
			}
			for _, line := range r.Geometry.Lines {
				c.DrawLine(line.Line.P1, line.Line.P2, verdict(line.Passed))
			}
		}
		if r.Thickness != nil {
			ok := r.Thickness.OverallPassed()
			for _, w := range r.Thickness.Wires {
				c.DrawROI(w.Shape, verdict(ok))
			}
		}
		if err := save("hu_geometry_thickness", c); err != nil {
			return written, err
		}
	}

	if r.Uniformity != nil {
		c := v.Render(src.At(r.Slices.Uniformity))
		for _, m := range r.Uniformity.ROIs {
			c.DrawROI(m.Shape, verdict(m.Passed))
		}
		if err := save("uniformity", c); err != nil {
			return written, err
		}
	}

	if r.LowContrast != nil && r.Slices.LowContrast >= 0 {
		c := v.Render(src.At(r.Slices.LowContrast))
		for _, t := range r.LowContrast.Targets {
			c.DrawROI(t.Shape, verdict(t.Visible))
		}
		if err := save("low_contrast", c); err != nil {
			return written, err
		}
	}

	if r.MTF != nil {
		c := v.Render(src.At(r.Slices.SpatialResolution))
		c.DrawCircle(r.MTF.Center, r.MTF.Radius, NeutralColor)
		if err := save("spatial_resolution", c); err != nil {
			return written, err
		}
	}
	return written, nil
}
