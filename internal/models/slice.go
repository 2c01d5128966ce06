package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Slice represents a single CT slice with metadata
type Slice struct {
	// Pixels holds the slice values (rows x columns), already rescaled to HU
	Pixels *mat.Dense

	// Index is the position of this slice in the ordered stack
	Index int

	// Filename is the original filename of the slice
	Filename string

	// PixelSpacing is the physical size of a pixel in mm
	PixelSpacing float64

	// Thickness is the nominal physical thickness of the slice in mm
	Thickness float64

	// Position is the physical position of the slice along the scan axis
	Position float64

	// Manufacturer identifies the scanner vendor
	Manufacturer string
}

// Stack is an ordered sequence of slices from a single acquisition.
// Slices are immutable once the stack is built.
type Stack struct {
	Slices []*Slice
}

// NewStack builds a stack and validates that every slice shares the
// same dimensions and carries usable spacing metadata.
func NewStack(slices []*Slice) (*Stack, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("stack contains no slices")
	}
	rows, cols := slices[0].Pixels.Dims()
	for i, s := range slices {
		r, c := s.Pixels.Dims()
		if r != rows || c != cols {
			return nil, fmt.Errorf("slice %d has dimensions %dx%d, expected %dx%d", i, r, c, rows, cols)
		}
		if s.PixelSpacing <= 0 {
			return nil, fmt.Errorf("slice %d has non-positive pixel spacing %v", i, s.PixelSpacing)
		}
		s.Index = i
	}
	return &Stack{Slices: slices}, nil
}

// Len returns the number of slices.
func (s *Stack) Len() int { return len(s.Slices) }

// At returns the pixel array of slice i.
func (s *Stack) At(i int) *mat.Dense { return s.Slices[i].Pixels }

// MMPerPixel returns the pixel spacing of the first slice; spacing is common
// throughout an acquisition.
func (s *Stack) MMPerPixel() float64 { return s.Slices[0].PixelSpacing }

// SliceThickness returns the nominal slice thickness of the acquisition.
func (s *Stack) SliceThickness() float64 { return s.Slices[0].Thickness }

// Manufacturer returns the vendor identifier of the acquisition.
func (s *Stack) Manufacturer() string { return s.Slices[0].Manufacturer }
