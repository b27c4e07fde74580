package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/trafficvision/sign-detection-service/models"
)

// imageExtensions are the formats batch mode picks up from a directory.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tiff": true,
}

// listImages returns the image files directly under dir, sorted by name so
// batch order is deterministic.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func buildReport(records []models.DetectionRecord, summary models.BatchSummary) models.Report {
	return models.Report{
		DetectionSummary: summary,
		Detections:       records,
	}
}

// writeReport persists the batch document: a detection_summary block plus
// the ordered detections. This shape is the wire contract.
func writeReport(report models.Report, path string) error {
	return writeJSON(report, path)
}

// writeRecord persists a single detection record.
func writeRecord(rec models.DetectionRecord, path string) error {
	return writeJSON(rec, path)
}

func writeJSON(doc any, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// printRecord writes a human-readable result block to stdout, for the
// single-image command.
func printRecord(rec models.DetectionRecord) {
	line := strings.Repeat("=", 50)
	fmt.Println(line)
	fmt.Println("DETECTION RESULTS")
	fmt.Println(line)

	if rec.Detected && rec.PrimaryDetection != nil {
		primary := rec.PrimaryDetection
		fmt.Printf("DETECTED: %s\n", primary.Label)
		fmt.Printf("  Confidence: %.4f\n", primary.Confidence)
		fmt.Printf("  Class ID:   %d\n", primary.ClassID)
		fmt.Printf("  Inference:  %.2fms\n", rec.InferenceTimeMs)
		if len(rec.TopPredictions) > 1 {
			fmt.Println("Top predictions:")
			for i, pred := range rec.TopPredictions {
				fmt.Printf("  %d. %s (%.4f)\n", i+1, pred.Label, pred.Confidence)
			}
		}
	} else {
		fmt.Println("NO TRAFFIC SIGN DETECTED")
		if rec.Error != "" {
			fmt.Printf("  Error: %s\n", rec.Error)
		} else {
			fmt.Printf("  Maximum confidence was below threshold (%v)\n",
				rec.ModelInfo.ConfidenceThreshold)
		}
	}
	fmt.Println(line)
}
