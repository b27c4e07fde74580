package detections

import (
	"path/filepath"
	"time"

	"github.com/trafficvision/sign-detection-service/models"
)

// DetectBatch runs the detector over paths one at a time, preserving input
// order in the returned records. One image failing never aborts the batch;
// it contributes a failed record and processing moves on.
func (d *Detector) DetectBatch(paths []string) ([]models.DetectionRecord, models.BatchSummary) {
	records := make([]models.DetectionRecord, 0, len(paths))
	for i, path := range paths {
		d.log.Infof("processing image %d/%d: %s", i+1, len(paths), filepath.Base(path))
		records = append(records, d.DetectSign(path))
	}
	return records, Summarize(records)
}

// Summarize computes batch statistics in a single pass over completed
// records. Records that never reached the inference stage carry no timing
// and are excluded from the latency average. An empty batch yields a zero
// success rate, not a division fault.
func Summarize(records []models.DetectionRecord) models.BatchSummary {
	summary := models.BatchSummary{
		TotalImages:        len(records),
		DetectionTimestamp: time.Now(),
	}

	timed := 0
	totalMs := 0.0
	for _, rec := range records {
		if rec.Detected {
			summary.SuccessfulDetections++
		} else {
			summary.FailedDetections++
		}
		if rec.InferenceTimeMs > 0 {
			timed++
			totalMs += rec.InferenceTimeMs
		}
	}

	if summary.TotalImages > 0 {
		summary.SuccessRate = round2(float64(summary.SuccessfulDetections) / float64(summary.TotalImages) * 100)
	}
	if timed > 0 {
		summary.AverageInferenceTimeMs = round2(totalMs / float64(timed))
	}
	return summary
}
