package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cbctqa/internal/logging"
	"cbctqa/pkg/cbct"
	"cbctqa/pkg/config"
	"cbctqa/pkg/dicomstack"
	"cbctqa/pkg/visualization"
)

// scanResult is the outcome of analyzing one scan
type scanResult struct {
	name   string
	report *cbct.Report
	err    error
}

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "DICOM folder or zip archive of a CatPhan scan (with -batch: a folder of scans)")
	configPath := flag.String("config", "", "YAML configuration file (defaults are used when missing)")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this file and exit")
	overlayDir := flag.String("overlay", "", "Directory to save diagnostic overlay images")
	overlayFormat := flag.String("format", "png", "Overlay image format: png or jpg")
	reportPath := flag.String("report", "", "YAML report file (with -batch: a directory of reports)")
	batch := flag.Bool("batch", false, "Analyze every sub-folder or zip archive of -input as a separate scan")
	numCores := flag.Int("cores", 0, "Number of scans analyzed at once in batch mode (default: from config)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	// Validate inputs
	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *verbose {
		cfg.Output.Verbose = true
	}
	if *overlayDir != "" {
		cfg.Output.OverlayDir = *overlayDir
	}
	if *reportPath != "" {
		cfg.Output.ReportFile = *reportPath
	}

	fmt.Println("================================")
	fmt.Println("CATPHAN CBCT QUALITY ASSURANCE")
	fmt.Println("================================")

	logger := logging.NewLogger("cbctqa", cfg.Output.Verbose)
	viewer := visualization.NewViewer(2, *overlayFormat)
	startTime := time.Now()

	if !*batch {
		res := analyzeScan(*inputPath, cfg, logger, viewer, cfg.Processing.NumCores, cfg.Output.OverlayDir, cfg.Output.ReportFile)
		if res.err != nil {
			log.Fatalf("Analysis failed: %v", res.err)
		}
		fmt.Print(res.report.String())
		fmt.Printf("\nOverall: %s (%.2f seconds)\n", verdict(res.report.Passed()), time.Since(startTime).Seconds())
		if !res.report.Passed() {
			os.Exit(2)
		}
		return
	}

	scans, err := listScans(*inputPath)
	if err != nil {
		log.Fatalf("Failed to list scans: %v", err)
	}
	if len(scans) == 0 {
		log.Fatalf("No scans found in %s", *inputPath)
	}
	fmt.Printf("Analyzing %d scans on %d workers...\n", len(scans), cfg.Processing.NumCores)

	results := runBatch(scans, cfg, logger, viewer)

	failed := 0
	for _, res := range results {
		fmt.Printf("\n=== %s ===\n", res.name)
		if res.err != nil {
			failed++
			fmt.Printf("Analysis failed: %v\n", res.err)
			continue
		}
		if !res.report.Passed() {
			failed++
		}
		fmt.Print(res.report.String())
	}
	fmt.Printf("\n%d of %d scans passed in %.2f seconds\n", len(results)-failed, len(results), time.Since(startTime).Seconds())
	if failed > 0 {
		os.Exit(2)
	}
}

// runBatch analyzes the scans concurrently, at most NumCores at a time.
func runBatch(scans []string, cfg *config.Config, logger *logging.Logger, viewer *visualization.Viewer) []scanResult {
	workers := cfg.Processing.NumCores
	if workers < 1 {
		workers = 1
	}

	resultChan := make(chan scanResult, len(scans))
	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, scan := range scans {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			name := scanName(path)
			var overlays, report string
			if cfg.Output.OverlayDir != "" {
				overlays = filepath.Join(cfg.Output.OverlayDir, name)
			}
			if cfg.Output.ReportFile != "" {
				report = filepath.Join(cfg.Output.ReportFile, name+".yaml")
			}
			// scans are the unit of parallelism, so each loads on one goroutine
			resultChan <- analyzeScan(path, cfg, logger.With(name), viewer, 1, overlays, report)
		}(scan)
	}

	wg.Wait()
	close(resultChan)

	var results []scanResult
	for res := range resultChan {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].name < results[j].name })
	return results
}

// analyzeScan loads, analyzes and reports one scan.
// loadCores bounds the goroutines parsing its files.
func analyzeScan(path string, cfg *config.Config, logger *logging.Logger, viewer *visualization.Viewer, loadCores int, overlayDir, reportFile string) scanResult {
	res := scanResult{name: scanName(path)}

	stack, err := dicomstack.NewLoader(logger, loadCores).Load(path)
	if err != nil {
		res.err = fmt.Errorf("error loading %s: %w", path, err)
		return res
	}

	analysis, err := cbct.NewAnalysis(stack, cfg, logger)
	if err != nil {
		res.err = err
		return res
	}
	report, err := analysis.Analyze()
	if err != nil {
		res.err = err
		return res
	}
	res.report = report

	if reportFile != "" {
		if err := report.SaveYAML(reportFile); err != nil {
			logger.Error("Failed to save report", "file", reportFile, "error", err)
		} else {
			logger.Info("Report saved", "file", reportFile)
		}
	}
	if overlayDir != "" {
		written, err := viewer.SaveOverlays(stack, report, overlayDir)
		if err != nil {
			logger.Error("Failed to save overlays", "dir", overlayDir, "error", err)
		}
		logger.Info("Overlays saved", "dir", overlayDir, "count", len(written))
	}
	return res
}

// listScans returns the sub-folders and zip archives of dir.
func listScans(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var scans []string
	for _, e := range entries {
		if e.IsDir() || strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			scans = append(scans, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(scans)
	return scans, nil
}

func scanName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func verdict(passed bool) string {
	if passed {
		return "PASSED"
	}
	return "FAILED"
}
