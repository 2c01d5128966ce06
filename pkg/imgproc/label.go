package imgproc

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// Region summarizes one connected component.
type Region struct {
	Label  int
	Area   int
	MinRow int
	MinCol int
	MaxRow int
	MaxCol int

	sumRow float64
	sumCol float64
}

// Centroid is the unweighted center of mass as (x=column, y=row).
func (r Region) Centroid() r2.Vec {
	return r2.Vec{X: r.sumCol / float64(r.Area), Y: r.sumRow / float64(r.Area)}
}

// BoundingArea is the area of the region's bounding box.
func (r Region) BoundingArea() int {
	return (r.MaxRow - r.MinRow + 1) * (r.MaxCol - r.MinCol + 1)
}

// FillRatio is the region area over its bounding box area. A filled circle
// gives π/4.
func (r Region) FillRatio() float64 {
	return float64(r.Area) / float64(r.BoundingArea())
}

// Labels is a label image: 0 is background, components are numbered from 1.
type Labels struct {
	Rows, Cols int
	Data       []int
}

// Mask returns the pixels carrying label.
func (l *Labels) Mask(label int) *Mask {
	m := NewMask(l.Rows, l.Cols)
	for i, v := range l.Data {
		m.Data[i] = v == label
	}
	return m
}

// Label finds the 8-connected components of the foreground. Regions are
// returned in label order (scan order of their first pixel).
func Label(m *Mask) (*Labels, []Region) {
	rows, cols := m.Rows, m.Cols
	labels := &Labels{Rows: rows, Cols: cols, Data: make([]int, rows*cols)}
	var regions []Region
	var stack []int

	for start, fg := range m.Data {
		if !fg || labels.Data[start] != 0 {
			continue
		}
		id := len(regions) + 1
		reg := Region{
			Label:  id,
			MinRow: rows,
			MinCol: cols,
			MaxRow: -1,
			MaxCol: -1,
		}
		labels.Data[start] = id
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			r, c := i/cols, i%cols

			reg.Area++
			reg.sumRow += float64(r)
			reg.sumCol += float64(c)
			if r < reg.MinRow {
				reg.MinRow = r
			}
			if r > reg.MaxRow {
				reg.MaxRow = r
			}
			if c < reg.MinCol {
				reg.MinCol = c
			}
			if c > reg.MaxCol {
				reg.MaxCol = c
			}

			for dr := -1; dr <= 1; dr++ {
				nr := r + dr
				if nr < 0 || nr >= rows {
					continue
				}
				for dc := -1; dc <= 1; dc++ {
					nc := c + dc
					if nc < 0 || nc >= cols || (dr == 0 && dc == 0) {
						continue
					}
					j := nr*cols + nc
					if m.Data[j] && labels.Data[j] == 0 {
						labels.Data[j] = id
						stack = append(stack, j)
					}
				}
			}
		}
		regions = append(regions, reg)
	}

	return labels, regions
}
