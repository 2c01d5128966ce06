// Package geometry converts nominal phantom geometry (angles and distances in
// mm) into pixel coordinates.
//
// Coordinates are (x, y) with x along image columns and y along image rows,
// so y grows downwards. An angle of 0° points along +x and angles increase
// towards +y, which is the same sense used by the roll estimate.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is a location in pixel space.
type Point = r2.Vec

// Pt is shorthand for building a Point.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Place returns the pixel location at nominalAngleDeg (corrected by rollDeg)
// and radiusMM from center.
func Place(nominalAngleDeg, radiusMM float64, center Point, rollDeg, mmPerPixel float64) Point {
	angle := (nominalAngleDeg + rollDeg) * math.Pi / 180
	r := radiusMM / mmPerPixel
	return Point{
		X: center.X + r*math.Cos(angle),
		Y: center.Y + r*math.Sin(angle),
	}
}

// Layout carries what every module needs to turn its nominal ROI table into
// pixel space: the phantom center, the roll, and the pixel spacing.
type Layout struct {
	Center     Point
	RollDeg    float64
	MMPerPixel float64
}

// Pixels converts a physical length to pixels.
func (l Layout) Pixels(mm float64) float64 {
	return mm / l.MMPerPixel
}

// MM converts a pixel length to mm.
func (l Layout) MM(px float64) float64 {
	return px * l.MMPerPixel
}

// Angle returns a nominal angle corrected for roll.
func (l Layout) Angle(nominalDeg float64) float64 {
	return nominalDeg + l.RollDeg
}

// Position places a point at a nominal angle and distance from the center.
func (l Layout) Position(nominalAngleDeg, distMM float64) Point {
	return Place(nominalAngleDeg, distMM, l.Center, l.RollDeg, l.MMPerPixel)
}

// Line connects two points.
type Line struct {
	P1, P2 Point
}

// Length is the euclidean length of the line in pixels.
func (l Line) Length() float64 {
	return r2.Norm(r2.Sub(l.P2, l.P1))
}

// Distance between two points in pixels.
func Distance(a, b Point) float64 {
	return r2.Norm(r2.Sub(a, b))
}
