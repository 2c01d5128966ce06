package cbct

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"cbctqa/internal/models"
)

// createTestImage creates a size x size image filled with v
func createTestImage(size int, v float64) *mat.Dense {
	img := mat.NewDense(size, size, nil)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			img.Set(r, c, v)
		}
	}
	return img
}

// paintDisk sets every pixel within radius of (cx, cy) to v
func paintDisk(img *mat.Dense, cx, cy, radius, v float64) {
	rows, cols := img.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dx, dy := float64(c)-cx, float64(r)-cy
			if dx*dx+dy*dy <= radius*radius {
				img.Set(r, c, v)
			}
		}
	}
}

// paintSector sets the pixels of an annular sector (angles in degrees,
// measured from +x towards +y) to v
func paintSector(img *mat.Dense, cx, cy, r0, r1, a0, a1, v float64) {
	rows, cols := img.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dx, dy := float64(c)-cx, float64(r)-cy
			d := math.Hypot(dx, dy)
			if d < r0 || d > r1 {
				continue
			}
			a := math.Atan2(dy, dx) * 180 / math.Pi
			if a < 0 {
				a += 360
			}
			if a >= a0 && a <= a1 {
				img.Set(r, c, v)
			}
		}
	}
}

const (
	phantomSize   = 256
	phantomCenter = 128.0
	phantomRadius = 101.0
)

// plainPhantom is a water-equivalent disk in air, at 1 mm/pixel
func plainPhantom() *mat.Dense {
	img := createTestImage(phantomSize, -1000)
	paintDisk(img, phantomCenter, phantomCenter, phantomRadius, 0)
	return img
}

// huPhantom adds a dense and an air insert where the HU module profile runs
func huPhantom() *mat.Dense {
	img := plainPhantom()
	paintSector(img, phantomCenter, phantomCenter, 54, 64, 0, 30, 1000)
	paintSector(img, phantomCenter, phantomCenter, 54, 64, 180, 210, -1000)
	return img
}

// buildStack builds a stack of n slices at 1 mm/pixel where the slices in
// huSlices carry the HU module
func buildStack(n int, huSlices []int, thickness float64, manufacturer string) *models.Stack {
	plain, hu := plainPhantom(), huPhantom()
	isHU := make(map[int]bool)
	for _, i := range huSlices {
		isHU[i] = true
	}

	slices := make([]*models.Slice, n)
	for i := range slices {
		px := plain
		if isHU[i] {
			px = hu
		}
		slices[i] = &models.Slice{
			Pixels:       px,
			PixelSpacing: 1,
			Thickness:    thickness,
			Position:     float64(i) * thickness,
			Manufacturer: manufacturer,
		}
	}
	stack, err := models.NewStack(slices)
	if err != nil {
		panic(err)
	}
	return stack
}
