package detections

import (
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficvision/sign-detection-service/models"
)

func TestDetectBatchPreservesOrderAndIsolatesFailures(t *testing.T) {
	good1 := writeTestImage(t, "a.png", uniformImage(20, 20, color.NRGBA{R: 50, A: 255}))
	good2 := writeTestImage(t, "b.png", uniformImage(20, 20, color.NRGBA{G: 50, A: 255}))
	good3 := writeTestImage(t, "c.png", uniformImage(20, 20, color.NRGBA{B: 50, A: 255}))
	missing := filepath.Join(t.TempDir(), "missing.png")
	paths := []string{good1, missing, good2, good3}

	detector := newTestDetector(t, &fakeEngine{scores: simplexScores(14, 0.95), elapsed: 2}, Config{})

	records, summary := detector.DetectBatch(paths)

	require.Len(t, records, 4)
	for i, rec := range records {
		assert.Equal(t, paths[i], rec.ImagePath)
	}

	assert.False(t, records[1].Detected)
	assert.NotEmpty(t, records[1].Error)

	assert.Equal(t, 4, summary.TotalImages)
	assert.Equal(t, 3, summary.SuccessfulDetections)
	assert.Equal(t, 1, summary.FailedDetections)
	assert.Equal(t, 75.0, summary.SuccessRate)
	assert.Equal(t, 2.0, summary.AverageInferenceTimeMs)
	assert.False(t, summary.DetectionTimestamp.IsZero())
}

func TestDetectBatchEmpty(t *testing.T) {
	detector := newTestDetector(t, &fakeEngine{scores: simplexScores(0, 0.9)}, Config{})

	records, summary := detector.DetectBatch(nil)

	assert.Empty(t, records)
	assert.Equal(t, 0, summary.TotalImages)
	assert.Equal(t, 0.0, summary.SuccessRate)
	assert.Equal(t, 0.0, summary.AverageInferenceTimeMs)
}

func TestSummarizeExcludesUntimedRecords(t *testing.T) {
	records := []models.DetectionRecord{
		{ImagePath: "a.png", Detected: true, InferenceTimeMs: 4, Timestamp: time.Now()},
		{ImagePath: "b.png", Detected: true, InferenceTimeMs: 2, Timestamp: time.Now()},
		{ImagePath: "c.png", Detected: false, Error: "preprocess: image decode error", Timestamp: time.Now()},
	}

	summary := Summarize(records)

	assert.Equal(t, 3, summary.TotalImages)
	assert.Equal(t, 2, summary.SuccessfulDetections)
	assert.Equal(t, 1, summary.FailedDetections)
	// The failed record never reached inference, so only two timings count.
	assert.Equal(t, 3.0, summary.AverageInferenceTimeMs)
	assert.Equal(t, 66.67, summary.SuccessRate)
}

func TestSummarizeCountsBelowThresholdAsFailed(t *testing.T) {
	records := []models.DetectionRecord{
		{ImagePath: "a.png", Detected: false, InferenceTimeMs: 5},
	}

	summary := Summarize(records)

	assert.Equal(t, 1, summary.FailedDetections)
	// Below-threshold records did run inference; their timing counts.
	assert.Equal(t, 5.0, summary.AverageInferenceTimeMs)
}
