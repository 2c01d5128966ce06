package cbct

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func binaryOptions(expected float64) LocateOptions {
	return LocateOptions{
		Threshold:    0.5,
		ExpectedArea: expected,
		AreaLower:    0.93,
		AreaUpper:    1.07,
		FillLower:    0.9,
		FillUpper:    1.02,
	}
}

func TestLocateCircle(t *testing.T) {
	const cx, cy, r = 100.0, 90.0, 40.0
	img := createTestImage(200, 0)
	paintDisk(img, cx, cy, r, 1)
	area := math.Pi * r * r

	for _, factor := range []float64{0.95, 0.98, 1, 1.02, 1.05} {
		c, err := Locate(img, binaryOptions(area*factor))
		if err != nil {
			t.Fatalf("factor %v: unexpected error: %v", factor, err)
		}
		if math.Abs(c.X-cx) > 1 || math.Abs(c.Y-cy) > 1 {
			t.Errorf("factor %v: expected center (%v, %v), got (%v, %v)", factor, cx, cy, c.X, c.Y)
		}
	}
}

func TestLocateAxisOrder(t *testing.T) {
	img := createTestImage(200, 0)
	paintDisk(img, 140, 60, 30, 1)

	c, err := Locate(img, binaryOptions(math.Pi*900))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(c.X-140) > 0.5 || math.Abs(c.Y-60) > 0.5 {
		t.Errorf("Expected (x=140, y=60), got (%v, %v)", c.X, c.Y)
	}
}

func TestLocateNoMatchingArea(t *testing.T) {
	img := createTestImage(200, 0)
	paintDisk(img, 100, 100, 40, 1)

	_, err := Locate(img, binaryOptions(3*math.Pi*1600))
	if !IsCode(err, ErrorLocalization) {
		t.Errorf("Expected localization error, got %v", err)
	}

	_, err = Locate(createTestImage(50, 0), binaryOptions(100))
	if !IsCode(err, ErrorLocalization) {
		t.Errorf("Expected localization error on an empty image, got %v", err)
	}
}

func TestLocateRejectsSquare(t *testing.T) {
	img := createTestImage(200, 0)
	for r := 50; r < 130; r++ {
		for c := 50; c < 130; c++ {
			img.Set(r, c, 1)
		}
	}
	_, err := Locate(img, binaryOptions(80*80))
	if !IsCode(err, ErrorLocalization) {
		t.Errorf("Expected localization error for a square, got %v", err)
	}
}

func TestLocatePicksClosestArea(t *testing.T) {
	img := createTestImage(300, 0)
	paintDisk(img, 80, 80, 40, 1)
	paintDisk(img, 210, 210, 41, 1)

	c, err := Locate(img, binaryOptions(math.Pi*41*41))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(c.X-210) > 1 {
		t.Errorf("Expected the disk closest in area to win, got (%v, %v)", c.X, c.Y)
	}
}

func TestLocateIdempotent(t *testing.T) {
	img := plainPhantom()
	opts := LocateOptions{
		Threshold:    -600,
		ExpectedArea: ExpectedPhantomArea(101, 1),
		AreaLower:    0.93,
		AreaUpper:    1.07,
		FillLower:    0.9,
		FillUpper:    1.02,
	}
	before := mat.DenseCopyOf(img)

	c1, err1 := Locate(img, opts)
	c2, err2 := Locate(img, opts)
	if err1 != nil || err2 != nil {
		t.Fatalf("Unexpected errors: %v, %v", err1, err2)
	}
	if c1 != c2 {
		t.Errorf("Expected identical centers, got %v and %v", c1, c2)
	}
	if !mat.Equal(before, img) {
		t.Error("Locate must not modify the slice")
	}
}

func TestEstimateRoll(t *testing.T) {
	opts := RollOptions{Threshold: -600, MarkerArea: MarkerArea(6, 1), MarkerLower: 0.5, MarkerUpper: 1.5}

	tests := []struct {
		d, delta float64
	}{
		{30, 0},
		{30, 20},
		{25, -15},
		{10, 40},
	}
	for _, tt := range tests {
		img := createTestImage(200, 0)
		paintDisk(img, 100, 100-tt.d, 6, -1000)
		paintDisk(img, 100+tt.delta, 100+tt.d, 6, -1000)

		roll, ambiguous := EstimateRoll(img, opts)
		if ambiguous {
			t.Errorf("d=%v delta=%v: unexpected ambiguous roll", tt.d, tt.delta)
			continue
		}
		want := math.Atan2(2*tt.d, tt.delta)*180/math.Pi - 90
		if math.Abs(roll-want) > 0.5 {
			t.Errorf("d=%v delta=%v: expected roll %.2f, got %.2f", tt.d, tt.delta, want, roll)
		}
	}
}

func TestEstimateRollAmbiguous(t *testing.T) {
	opts := RollOptions{Threshold: -600, MarkerArea: MarkerArea(6, 1), MarkerLower: 0.5, MarkerUpper: 1.5}

	none := createTestImage(200, 0)
	if roll, ambiguous := EstimateRoll(none, opts); roll != 0 || !ambiguous {
		t.Errorf("No markers: expected (0, true), got (%v, %v)", roll, ambiguous)
	}

	three := createTestImage(200, 0)
	paintDisk(three, 100, 60, 6, -1000)
	paintDisk(three, 100, 140, 6, -1000)
	paintDisk(three, 60, 100, 6, -1000)
	if roll, ambiguous := EstimateRoll(three, opts); roll != 0 || !ambiguous {
		t.Errorf("Three markers: expected (0, true), got (%v, %v)", roll, ambiguous)
	}

	one := createTestImage(200, 0)
	paintDisk(one, 100, 60, 6, -1000)
	if _, ambiguous := EstimateRoll(one, opts); !ambiguous {
		t.Error("One marker: expected ambiguous roll")
	}
}
