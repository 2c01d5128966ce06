package imgproc

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CombineMode selects how neighbouring slices are merged.
type CombineMode int

const (
	CombineMean CombineMode = iota
	CombineMax
	CombineMedian
)

// String implements fmt.Stringer.
func (m CombineMode) String() string {
	switch m {
	case CombineMean:
		return "mean"
	case CombineMax:
		return "max"
	case CombineMedian:
		return "median"
	}
	return fmt.Sprintf("CombineMode(%d)", int(m))
}

// Combine merges equally sized images pixel by pixel.
func Combine(images []*mat.Dense, mode CombineMode) (*mat.Dense, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images to combine")
	}
	rows, cols := images[0].Dims()
	for i, img := range images[1:] {
		if r, c := img.Dims(); r != rows || c != cols {
			return nil, fmt.Errorf("image %d is %dx%d, expected %dx%d", i+1, r, c, rows, cols)
		}
	}

	out := mat.NewDense(rows, cols, nil)
	values := make([]float64, len(images))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			for i, img := range images {
				values[i] = img.At(r, c)
			}
			var v float64
			switch mode {
			case CombineMax:
				v = values[0]
				for _, x := range values[1:] {
					if x > v {
						v = x
					}
				}
			case CombineMedian:
				v = Median(values)
			default:
				for _, x := range values {
					v += x
				}
				v /= float64(len(values))
			}
			out.Set(r, c, v)
		}
	}
	return out, nil
}

// MedianFilter applies a size x size median filter. Borders are handled by
// mirroring the image about its edge pixels.
func MedianFilter(img *mat.Dense, size int) *mat.Dense {
	rows, cols := img.Dims()
	out := mat.NewDense(rows, cols, nil)
	if size <= 1 {
		out.Copy(img)
		return out
	}

	lo := size / 2
	window := make([]float64, 0, size*size)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			window = window[:0]
			for dr := 0; dr < size; dr++ {
				rr := ReflectIndex(r+dr-lo, rows)
				for dc := 0; dc < size; dc++ {
					cc := ReflectIndex(c+dc-lo, cols)
					window = append(window, img.At(rr, cc))
				}
			}
			sort.Float64s(window)
			out.Set(r, c, window[len(window)/2])
		}
	}
	return out
}

// ReflectIndex maps i into [0, n) mirroring about the edges (d c b a | a b c d).
func ReflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// Median calculates the median value of a slice of float64 values
func Median(values []float64) float64 {
	// Create a copy to avoid modifying the original
	valuesCopy := make([]float64, len(values))
	copy(valuesCopy, values)
	sort.Float64s(valuesCopy)

	n := len(valuesCopy)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (valuesCopy[n/2-1] + valuesCopy[n/2]) / 2
	}
	return valuesCopy[n/2]
}
