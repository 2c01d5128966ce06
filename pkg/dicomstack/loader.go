// Package dicomstack reads CT DICOM series, from a folder or a zip archive,
// into slice stacks ready for analysis.
package dicomstack

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/mat"

	"cbctqa/internal/logging"
	"cbctqa/internal/models"
)

// CTImageStorage is the SOP class UID of CT Image Storage
const CTImageStorage = "1.2.840.10008.5.1.4.1.1.2"

// Loader reads DICOM files into stacks
type Loader struct {
	logger   *logging.Logger
	numCores int
}

// NewLoader creates a loader parsing files on numCores goroutines. A
// non-positive numCores uses every CPU.
func NewLoader(logger *logging.Logger, numCores int) *Loader {
	if logger == nil {
		logger = logging.Discard()
	}
	if numCores <= 0 {
		numCores = runtime.NumCPU()
	}
	return &Loader{logger: logger, numCores: numCores}
}

// header is the metadata of one CT image needed for analysis
type header struct {
	sopClass     string
	series       string
	manufacturer string
	pixelSpacing float64
	thickness    float64
	position     float64
	hasPosition  bool
	slope        float64
	intercept    float64
	signed       bool
}

// record is one parsed file
type record struct {
	name   string
	header header
	pixels *mat.Dense
}

// source is a named DICOM payload, either a file or a zip entry
type source struct {
	name  string
	parse func() (dicom.Dataset, error)
}

// Load reads path, which is either a folder of DICOM files or a zip archive.
func (l *Loader) Load(path string) (*models.Stack, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error opening input: %w", err)
	}
	if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".zip") {
		return l.LoadZip(path)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input %s is neither a folder nor a zip archive", path)
	}
	return l.LoadDir(path)
}

// LoadDir reads every file below dir.
func (l *Loader) LoadDir(dir string) (*models.Stack, error) {
	var sources []source
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		p := path
		sources = append(sources, source{
			name:  p,
			parse: func() (dicom.Dataset, error) { return dicom.ParseFile(p, nil) },
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error reading input folder: %w", err)
	}
	return l.load(sources)
}

// LoadZip reads every entry of a zip archive.
func (l *Loader) LoadZip(path string) (*models.Stack, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("error opening zip archive: %w", err)
	}
	defer zr.Close()

	var sources []source
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		f := f
		sources = append(sources, source{
			name: f.Name,
			parse: func() (dicom.Dataset, error) {
				rc, err := f.Open()
				if err != nil {
					return dicom.Dataset{}, err
				}
				defer rc.Close()
				return dicom.Parse(rc, int64(f.UncompressedSize64), nil)
			},
		})
	}
	return l.load(sources)
}

// load parses the sources in parallel and assembles the CT images found.
func (l *Loader) load(sources []source) (*models.Stack, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no files found in input")
	}

	records := make([]*record, len(sources))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < l.numCores; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rec, err := readSource(sources[i])
				if err != nil {
					l.logger.Debug("Skipping file", "name", sources[i].name, "reason", err)
					continue
				}
				records[i] = rec
			}
		}()
	}
	for i := range sources {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var found []*record
	for _, rec := range records {
		if rec != nil {
			found = append(found, rec)
		}
	}
	stack, err := assemble(found, l.logger)
	if err != nil {
		return nil, err
	}
	l.logger.Info("Loaded stack", "slices", stack.Len(), "mmPerPixel", stack.MMPerPixel(),
		"thickness", stack.SliceThickness(), "manufacturer", stack.Manufacturer())
	return stack, nil
}

// readSource parses one payload and keeps it only if it is a CT image.
func readSource(s source) (*record, error) {
	ds, err := s.parse()
	if err != nil {
		return nil, fmt.Errorf("not a DICOM file: %w", err)
	}
	h, err := readHeader(ds)
	if err != nil {
		return nil, err
	}
	if h.sopClass != CTImageStorage {
		return nil, fmt.Errorf("SOP class %s is not CT Image Storage", h.sopClass)
	}
	px, err := pixelArray(ds, h)
	if err != nil {
		return nil, err
	}
	return &record{name: s.name, header: h, pixels: px}, nil
}

// assemble keeps the largest series, orders it along the scan axis and
// builds the stack.
func assemble(records []*record, logger *logging.Logger) (*models.Stack, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no CT images found in input")
	}

	bySeries := make(map[string][]*record)
	for _, rec := range records {
		bySeries[rec.header.series] = append(bySeries[rec.header.series], rec)
	}
	var series string
	for uid, recs := range bySeries {
		if len(recs) > len(bySeries[series]) || (len(recs) == len(bySeries[series]) && uid < series) {
			series = uid
		}
	}
	if len(bySeries) > 1 {
		logger.Warn("Input holds several series; analyzing the largest",
			"series", series, "count", len(bySeries))
	}
	kept := bySeries[series]

	// Sort along the scan axis; files without a position fall back to the
	// number in their name
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.header.hasPosition && b.header.hasPosition {
			return a.header.position < b.header.position
		}
		return extractNumber(a.name) < extractNumber(b.name)
	})

	slices := make([]*models.Slice, len(kept))
	for i, rec := range kept {
		slices[i] = &models.Slice{
			Pixels:       rec.pixels,
			Filename:     rec.name,
			PixelSpacing: rec.header.pixelSpacing,
			Thickness:    rec.header.thickness,
			Position:     rec.header.position,
			Manufacturer: rec.header.manufacturer,
		}
	}
	return models.NewStack(slices)
}

// readHeader extracts the analysis metadata from a dataset.
func readHeader(ds dicom.Dataset) (header, error) {
	h := header{
		sopClass:     firstString(ds, tag.SOPClassUID),
		series:       firstString(ds, tag.SeriesInstanceUID),
		manufacturer: firstString(ds, tag.Manufacturer),
		slope:        1,
	}

	spacing, ok := decimals(ds, tag.PixelSpacing)
	if !ok || spacing[0] <= 0 {
		return h, fmt.Errorf("missing or invalid PixelSpacing")
	}
	h.pixelSpacing = spacing[0]

	if v, ok := decimals(ds, tag.SliceThickness); ok {
		h.thickness = v[0]
	}
	if v, ok := decimals(ds, tag.ImagePositionPatient); ok && len(v) == 3 {
		h.position = v[2]
		h.hasPosition = true
	}
	if v, ok := decimals(ds, tag.RescaleSlope); ok {
		h.slope = v[0]
	}
	if v, ok := decimals(ds, tag.RescaleIntercept); ok {
		h.intercept = v[0]
	}
	if elem, err := ds.FindElementByTag(tag.PixelRepresentation); err == nil {
		if v, ok := elem.Value.GetValue().([]int); ok && len(v) > 0 {
			h.signed = v[0] == 1
		}
	}
	return h, nil
}

// pixelArray decodes the first frame and rescales it to HU.
func pixelArray(ds dicom.Dataset, h header) (*mat.Dense, error) {
	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("missing PixelData: %w", err)
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return nil, fmt.Errorf("unexpected PixelData value")
	}
	if info.IsEncapsulated {
		return nil, fmt.Errorf("encapsulated (compressed) pixel data is not supported")
	}
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("no frames in PixelData")
	}
	nf, err := info.Frames[0].GetNativeFrame()
	if err != nil {
		return nil, fmt.Errorf("error reading frame: %w", err)
	}
	if nf.Rows*nf.Cols != len(nf.Data) {
		return nil, fmt.Errorf("frame holds %d pixels, expected %dx%d", len(nf.Data), nf.Rows, nf.Cols)
	}

	data := make([]float64, len(nf.Data))
	for i, px := range nf.Data {
		data[i] = rescale(px[0], nf.BitsPerSample, h)
	}
	return mat.NewDense(nf.Rows, nf.Cols, data), nil
}

// rescale applies two's complement for signed data stored unsigned and the
// modality LUT.
func rescale(v, bits int, h header) float64 {
	if h.signed && bits > 0 && bits < 64 && v >= 1<<(bits-1) {
		v -= 1 << bits
	}
	return float64(v)*h.slope + h.intercept
}

func firstString(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return ""
	}
	v, ok := elem.Value.GetValue().([]string)
	if !ok || len(v) == 0 {
		return ""
	}
	return strings.TrimSpace(v[0])
}

// decimals parses a DS (decimal string) element.
func decimals(ds dicom.Dataset, t tag.Tag) ([]float64, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, false
	}
	raw, ok := elem.Value.GetValue().([]string)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	out := make([]float64, 0, len(raw))
	for _, s := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}
