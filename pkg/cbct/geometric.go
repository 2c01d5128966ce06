package cbct

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cbctqa/pkg/geometry"
	"cbctqa/pkg/imgproc"
	"cbctqa/pkg/profile"
	"cbctqa/pkg/roi"
)

const (
	nodeDistMM           = 35.0
	nodeRadiusMM         = 6.0
	nominalLineLengthMM  = 50.0
	nodeUpperFactor      = 1.4
	nodeLowerFactor      = 0.6
	geometryMedianFilter = 3
)

var nodePlacements = []struct {
	name  string
	angle float64
}{
	{"Top-Left", -135},
	{"Top-Right", -45},
	{"Bottom-Right", 45},
	{"Bottom-Left", 135},
}

var lineAssignments = []struct {
	name   string
	n1, n2 string
}{
	{"Top-Horizontal", "Top-Left", "Top-Right"},
	{"Bottom-Horizontal", "Bottom-Left", "Bottom-Right"},
	{"Left-Vertical", "Top-Left", "Bottom-Left"},
	{"Right-Vertical", "Top-Right", "Bottom-Right"},
}

// NodeResult is a located geometric node.
type NodeResult struct {
	Name string  `yaml:"name"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`

	Shape roi.Disk `yaml:"-"`
}

// LineResult is the distance between two node centers.
type LineResult struct {
	Name     string  `yaml:"name"`
	LengthMM float64 `yaml:"lengthMM"`
	Nominal  float64 `yaml:"nominal"`
	Passed   bool    `yaml:"passed"`

	Line geometry.Line `yaml:"-"`
}

// GeometryResult is the outcome of the geometric distortion module.
type GeometryResult struct {
	Nodes []NodeResult
	Lines []LineResult
}

// FindNode locates the node inside a geometry ROI.
//
// Pixels of the disk whose magnitude is more than 40% above the disk median,
// or more than 40% below it but above the disk minimum, are node candidates.
// After filling holes, the regions are ranked by size together with the
// remaining background; the largest is discarded and the second largest is
// the node. The center is the half-maximum center of the node's marginal
// projections weighted by absolute intensity.
func FindNode(img *mat.Dense, d roi.Disk) (geometry.Point, error) {
	sub, inside, origin := d.Masked(img)
	if sub == nil {
		return geometry.Point{}, NewLocalizationError(-1, fmt.Sprintf("node ROI %s is outside the image", d.Name))
	}
	rows, cols := sub.Dims()

	var mags []float64
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if inside.At(r, c) {
				mags = append(mags, math.Abs(sub.At(r, c)))
			}
		}
	}
	if len(mags) == 0 {
		return geometry.Point{}, NewLocalizationError(-1, fmt.Sprintf("node ROI %s covers no pixels", d.Name))
	}
	median := imgproc.Median(mags)
	min := mags[0]
	for _, v := range mags {
		min = math.Min(min, v)
	}

	candidates := imgproc.NewMask(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !inside.At(r, c) {
				continue
			}
			v := math.Abs(sub.At(r, c))
			high := v > median*nodeUpperFactor
			low := v < median*nodeLowerFactor && v > min
			candidates.Set(r, c, high || low)
		}
	}

	filled := imgproc.FillHoles(candidates)
	labels, regions := imgproc.Label(filled)

	// background competes with the regions for the largest slot
	sizes := []struct{ label, area int }{{0, rows*cols - filled.Count()}}
	for _, reg := range regions {
		sizes = append(sizes, struct{ label, area int }{reg.Label, reg.Area})
	}
	sort.SliceStable(sizes, func(i, j int) bool { return sizes[i].area > sizes[j].area })

	if len(sizes) < 2 || sizes[1].label == 0 || sizes[1].area == 0 {
		return geometry.Point{}, NewLocalizationError(-1, fmt.Sprintf("no node found in %s", d.Name))
	}
	if sizes[0].area == sizes[1].area || (len(sizes) > 2 && sizes[1].area == sizes[2].area) {
		return geometry.Point{}, NewLocalizationError(-1, fmt.Sprintf("node in %s is ambiguous", d.Name))
	}
	node := labels.Mask(sizes[1].label)

	xProj := make([]float64, cols)
	yProj := make([]float64, rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if node.At(r, c) {
				w := math.Abs(sub.At(r, c))
				xProj[c] += w
				yProj[r] += w
			}
		}
	}

	return geometry.Pt(
		origin.X+profile.FWXMCenter(xProj, 50),
		origin.Y+profile.FWXMCenter(yProj, 50),
	), nil
}

// AnalyzeGeometry locates the four nodes and measures the lines between
// them. The image is median filtered first to suppress salt and pepper
// noise around the nodes.
func AnalyzeGeometry(img *mat.Dense, l geometry.Layout, tolerance float64) (*GeometryResult, error) {
	filtered := imgproc.MedianFilter(img, geometryMedianFilter)

	res := &GeometryResult{}
	centers := make(map[string]geometry.Point, len(nodePlacements))
	for _, s := range nodePlacements {
		d := roi.NewDisk(s.name, l, s.angle, nodeDistMM, nodeRadiusMM)
		c, err := FindNode(filtered, d)
		if err != nil {
			return nil, err
		}
		centers[s.name] = c
		res.Nodes = append(res.Nodes, NodeResult{Name: s.name, X: c.X, Y: c.Y, Shape: d})
	}

	tol := Strictly(nominalLineLengthMM, tolerance)
	for _, a := range lineAssignments {
		line := geometry.Line{P1: centers[a.n1], P2: centers[a.n2]}
		length := l.MM(line.Length())
		res.Lines = append(res.Lines, LineResult{
			Name:     a.name,
			LengthMM: length,
			Nominal:  nominalLineLengthMM,
			Passed:   tol.Passed(length),
			Line:     line,
		})
	}
	return res, nil
}

// AvgLineLength is the mean line length in mm.
func (r *GeometryResult) AvgLineLength() float64 {
	lengths := make([]float64, len(r.Lines))
	for i, line := range r.Lines {
		lengths[i] = line.LengthMM
	}
	return stat.Mean(lengths, nil)
}

func (r *GeometryResult) OverallPassed() bool {
	for _, line := range r.Lines {
		if !line.Passed {
			return false
		}
	}
	return len(r.Lines) > 0
}

func (r *GeometryResult) Regions() []roi.ROI {
	out := make([]roi.ROI, len(r.Nodes))
	for i, n := range r.Nodes {
		out[i] = n.Shape
	}
	return out
}

func (r *GeometryResult) Summary() Result {
	metrics := map[string]float64{"averageLineLength": r.AvgLineLength()}
	for _, line := range r.Lines {
		metrics[line.Name] = line.LengthMM
	}
	return Result{Module: ModuleGeometry, Passed: r.OverallPassed(), Metrics: metrics, Lines: r.Lines}
}
