package geometry

import (
	"math"
	"testing"
)

func TestPlaceAlongZeroAxis(t *testing.T) {
	got := Place(0, 10, Pt(100, 100), 0, 0.5)
	if math.Abs(got.X-120) > 1e-9 || math.Abs(got.Y-100) > 1e-9 {
		t.Errorf("Expected (120, 100), got (%v, %v)", got.X, got.Y)
	}
}

func TestPlaceConvention(t *testing.T) {
	center := Pt(50, 50)
	tests := []struct {
		name  string
		angle float64
		roll  float64
		want  Point
	}{
		{"positive 90 points down the rows", 90, 0, Pt(50, 60)},
		{"negative 90 points up the rows", -90, 0, Pt(50, 40)},
		{"180 points left", 180, 0, Pt(40, 50)},
		{"roll is added to the nominal angle", 0, 90, Pt(50, 60)},
		{"roll cancels nominal angle", -45, 45, Pt(60, 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Place(tt.angle, 10, center, tt.roll, 1)
			if Distance(got, tt.want) > 1e-9 {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	l := Layout{Center: Pt(100, 100), RollDeg: 0, MMPerPixel: 0.5}

	if l.Pixels(10) != 20 {
		t.Errorf("Expected 20 px, got %v", l.Pixels(10))
	}
	if l.MM(20) != 10 {
		t.Errorf("Expected 10 mm, got %v", l.MM(20))
	}

	p := l.Position(0, 10)
	if Distance(p, Pt(120, 100)) > 1e-9 {
		t.Errorf("Expected (120, 100), got %v", p)
	}

	l.RollDeg = 2
	if l.Angle(88) != 90 {
		t.Errorf("Expected corrected angle 90, got %v", l.Angle(88))
	}
}

func TestLineLength(t *testing.T) {
	line := Line{P1: Pt(0, 0), P2: Pt(3, 4)}
	if line.Length() != 5 {
		t.Errorf("Expected length 5, got %v", line.Length())
	}
}
