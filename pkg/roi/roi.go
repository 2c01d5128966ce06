// Package roi defines the measurement regions placed on a slice.
//
// ROI is a closed set of variants: Disk, Rectangle and ContrastDisk.
// Consumers that need variant-specific data (such as overlay rendering)
// switch on the concrete type.
package roi

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cbctqa/pkg/geometry"
	"cbctqa/pkg/imgproc"
	"cbctqa/pkg/profile"
)

// ROI is a named region with a scalar summary value.
type ROI interface {
	// Label is the ROI name, e.g. "Air" or "Top"
	Label() string

	// Position is the ROI center in pixel space
	Position() geometry.Point

	// Value summarizes the image inside the ROI
	Value(img *mat.Dense) float64

	isROI()
}

// Disk is a circular region.
type Disk struct {
	Name   string
	Center geometry.Point
	Radius float64
}

// NewDisk places a disk at a nominal angle and distance from the phantom
// center.
func NewDisk(name string, l geometry.Layout, angleDeg, distMM, radiusMM float64) Disk {
	return Disk{
		Name:   name,
		Center: l.Position(angleDeg, distMM),
		Radius: l.Pixels(radiusMM),
	}
}

func (d Disk) Label() string { return d.Name }
func (d Disk) Position() geometry.Point { return d.Center }
func (d Disk) isROI() {}
func (d Disk) Value(img *mat.Dense) float64 { return d.Mean(img) }

// Contains reports whether the pixel (row, col) lies inside the disk.
func (d Disk) Contains(row, col int) bool {
	dx, dy := float64(col)-d.Center.X, float64(row)-d.Center.Y
	return dx*dx+dy*dy <= d.Radius*d.Radius
}

// bounds is the clamped bounding box of the disk as [r0, r1) x [c0, c1).
func (d Disk) bounds(rows, cols int) (r0, r1, c0, c1 int) {
	r0 = clamp(int(math.Floor(d.Center.Y-d.Radius)), 0, rows)
	r1 = clamp(int(math.Ceil(d.Center.Y+d.Radius))+1, 0, rows)
	c0 = clamp(int(math.Floor(d.Center.X-d.Radius)), 0, cols)
	c1 = clamp(int(math.Ceil(d.Center.X+d.Radius))+1, 0, cols)
	return
}

// Pixels returns the image values inside the disk in scan order.
func (d Disk) Pixels(img *mat.Dense) []float64 {
	rows, cols := img.Dims()
	r0, r1, c0, c1 := d.bounds(rows, cols)
	var values []float64
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			if d.Contains(r, c) {
				values = append(values, img.At(r, c))
			}
		}
	}
	return values
}

// Mean is the mean pixel value inside the disk, or NaN if the disk covers no
// pixel of the image.
func (d Disk) Mean(img *mat.Dense) float64 {
	values := d.Pixels(img)
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// Masked returns the bounding-box sub-array of the disk, the disk mask over
// that sub-array, and the (x, y) pixel offset of the sub-array origin.
func (d Disk) Masked(img *mat.Dense) (*mat.Dense, *imgproc.Mask, geometry.Point) {
	rows, cols := img.Dims()
	r0, r1, c0, c1 := d.bounds(rows, cols)
	if r1 <= r0 || c1 <= c0 {
		return nil, nil, geometry.Pt(float64(c0), float64(r0))
	}
	sub := mat.DenseCopyOf(img.Slice(r0, r1, c0, c1))
	mask := imgproc.NewMask(r1-r0, c1-c0)
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			mask.Set(r-r0, c-c0, d.Contains(r, c))
		}
	}
	return sub, mask, geometry.Pt(float64(c0), float64(r0))
}

// Rectangle is a rectangular region, rotated by Rotation degrees about its
// center.
type Rectangle struct {
	Name     string
	Center   geometry.Point
	Width    float64
	Height   float64
	Rotation float64
}

// NewRectangle places a rectangle at a nominal angle and distance from the
// phantom center. Sizes are in mm.
func NewRectangle(name string, l geometry.Layout, angleDeg, distMM, widthMM, heightMM float64) Rectangle {
	return Rectangle{
		Name:   name,
		Center: l.Position(angleDeg, distMM),
		Width:  l.Pixels(widthMM),
		Height: l.Pixels(heightMM),
	}
}

func (r Rectangle) Label() string { return r.Name }
func (r Rectangle) Position() geometry.Point { return r.Center }
func (r Rectangle) isROI() {}

// Value is the mean of the rectangle's sub-array.
func (r Rectangle) Value(img *mat.Dense) float64 {
	sub := r.SubArray(img)
	if sub == nil {
		return math.NaN()
	}
	return stat.Mean(sub.RawMatrix().Data, nil)
}

// Corners returns the four corners clockwise from the top left, before
// clipping to the image.
func (r Rectangle) Corners() [4]geometry.Point {
	a := r.Rotation * math.Pi / 180
	cos, sin := math.Cos(a), math.Sin(a)
	hw, hh := r.Width/2, r.Height/2
	var pts [4]geometry.Point
	for i, o := range [4][2]float64{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}} {
		pts[i] = geometry.Pt(r.Center.X+o[0]*cos-o[1]*sin, r.Center.Y+o[0]*sin+o[1]*cos)
	}
	return pts
}

// SubArray returns the pixels covered by the rectangle, Height rows by Width
// columns. Unrotated rectangles are cropped directly (and clipped to the
// image); rotated ones are resampled bilinearly along their own axes. It
// returns nil if the rectangle misses the image.
func (r Rectangle) SubArray(img *mat.Dense) *mat.Dense {
	if r.Rotation == 0 {
		rows, cols := img.Dims()
		r0 := clamp(int(math.Round(r.Center.Y-r.Height/2)), 0, rows)
		r1 := clamp(int(math.Round(r.Center.Y+r.Height/2)), 0, rows)
		c0 := clamp(int(math.Round(r.Center.X-r.Width/2)), 0, cols)
		c1 := clamp(int(math.Round(r.Center.X+r.Width/2)), 0, cols)
		if r1 <= r0 || c1 <= c0 {
			return nil
		}
		return mat.DenseCopyOf(img.Slice(r0, r1, c0, c1))
	}

	h, w := int(math.Round(r.Height)), int(math.Round(r.Width))
	if h < 1 || w < 1 {
		return nil
	}
	a := r.Rotation * math.Pi / 180
	cos, sin := math.Cos(a), math.Sin(a)
	out := mat.NewDense(h, w, nil)
	for i := 0; i < h; i++ {
		v := float64(i) - float64(h-1)/2
		for j := 0; j < w; j++ {
			u := float64(j) - float64(w-1)/2
			out.Set(i, j, profile.Sample(img, r.Center.X+u*cos-v*sin, r.Center.Y+u*sin+v*cos))
		}
	}
	return out
}

// ContrastDisk is a disk whose value is corrected by the mean of two
// background disks, one inside and one outside it on the same radial line.
type ContrastDisk struct {
	Disk
	Inner Disk
	Outer Disk
}

func (c ContrastDisk) isROI() {}

// Background is the mean of the inner and outer background means.
func (c ContrastDisk) Background(img *mat.Dense) float64 {
	return (c.Inner.Mean(img) + c.Outer.Mean(img)) / 2
}

// Value is the foreground mean minus the background.
func (c ContrastDisk) Value(img *mat.Dense) float64 {
	return c.Disk.Mean(img) - c.Background(img)
}

// Contrast is the absolute background-corrected value.
func (c ContrastDisk) Contrast(img *mat.Dense) float64 {
	return math.Abs(c.Value(img))
}

// ContrastConstant scales the contrast by the disk diameter in pixels.
func (c ContrastDisk) ContrastConstant(img *mat.Dense) float64 {
	return c.Contrast(img) * c.Radius * 2
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
