// Package imgproc implements the binary segmentation and filtering steps the
// phantom analysis needs: thresholding, connected-component labelling,
// region statistics, hole filling and median filtering.
package imgproc

import (
	"gonum.org/v1/gonum/mat"
)

// Mask is a binary image stored row-major.
type Mask struct {
	Rows, Cols int
	Data       []bool
}

// NewMask allocates an empty mask.
func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, Data: make([]bool, rows*cols)}
}

// Binarize marks every pixel >= threshold as foreground.
func Binarize(img *mat.Dense, threshold float64) *Mask {
	rows, cols := img.Dims()
	m := NewMask(rows, cols)
	raw := img.RawMatrix()
	for r := 0; r < rows; r++ {
		row := raw.Data[r*raw.Stride : r*raw.Stride+cols]
		for c, v := range row {
			m.Data[r*cols+c] = v >= threshold
		}
	}
	return m
}

// At reports whether (row, col) is foreground.
func (m *Mask) At(r, c int) bool {
	return m.Data[r*m.Cols+c]
}

// Set assigns (row, col).
func (m *Mask) Set(r, c int, v bool) {
	m.Data[r*m.Cols+c] = v
}

// Invert returns the complement of the mask.
func (m *Mask) Invert() *Mask {
	out := NewMask(m.Rows, m.Cols)
	for i, v := range m.Data {
		out.Data[i] = !v
	}
	return out
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Or returns the union of two masks of equal size.
func (m *Mask) Or(o *Mask) *Mask {
	out := NewMask(m.Rows, m.Cols)
	for i := range m.Data {
		out.Data[i] = m.Data[i] || o.Data[i]
	}
	return out
}

// FillHoles sets every background pixel that cannot be reached from the image
// border (through 4-connected background) to foreground.
func FillHoles(m *Mask) *Mask {
	rows, cols := m.Rows, m.Cols
	reached := make([]bool, len(m.Data))
	stack := make([]int, 0, 2*(rows+cols))

	push := func(r, c int) {
		i := r*cols + c
		if m.Data[i] || reached[i] {
			return
		}
		reached[i] = true
		stack = append(stack, i)
	}

	for c := 0; c < cols; c++ {
		push(0, c)
		push(rows-1, c)
	}
	for r := 0; r < rows; r++ {
		push(r, 0)
		push(r, cols-1)
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		r, c := i/cols, i%cols
		if r > 0 {
			push(r-1, c)
		}
		if r < rows-1 {
			push(r+1, c)
		}
		if c > 0 {
			push(r, c-1)
		}
		if c < cols-1 {
			push(r, c+1)
		}
	}

	out := NewMask(rows, cols)
	for i := range m.Data {
		out.Data[i] = m.Data[i] || !reached[i]
	}
	return out
}
