package detections

import (
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	scores  []float32
	elapsed float64
	err     error
	classes int
}

func (f *fakeEngine) Infer(_ []float32) ([]float32, float64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.scores, f.elapsed, nil
}

func (f *fakeEngine) ModelPath() string { return "testdata/gtsrb_model.onnx" }

func (f *fakeEngine) InputShape() []int64 {
	return []int64{1, InputHeight, InputWidth, InputChannels}
}

func (f *fakeEngine) ClassCount() int {
	if f.classes > 0 {
		return f.classes
	}
	return NumClasses
}

func newTestDetector(t *testing.T, engine *fakeEngine, cfg Config) *Detector {
	t.Helper()
	if cfg.ModelPath == "" {
		cfg.ModelPath = engine.ModelPath()
	}
	detector, err := NewDetector(cfg, engine, GTSRB(), nil)
	require.NoError(t, err)
	return detector
}

func TestDetectSignSuccess(t *testing.T) {
	path := writeTestImage(t, "sign.png", uniformImage(48, 48, color.NRGBA{R: 180, G: 30, B: 30, A: 255}))
	engine := &fakeEngine{scores: simplexScores(14, 0.99), elapsed: 3.456}
	detector := newTestDetector(t, engine, Config{})

	rec := detector.DetectSign(path)

	assert.True(t, rec.Detected)
	require.NotNil(t, rec.PrimaryDetection)
	assert.Equal(t, 14, rec.PrimaryDetection.ClassID)
	assert.Equal(t, "Stop", rec.PrimaryDetection.Label)
	assert.Equal(t, *rec.PrimaryDetection, rec.TopPredictions[0])
	assert.Equal(t, 3.46, rec.InferenceTimeMs)
	assert.Empty(t, rec.Error)
	assert.Equal(t, path, rec.ImagePath)
	assert.False(t, rec.Timestamp.IsZero())
	assert.Len(t, rec.TopPredictions, DefaultTopK)

	// Model info is echoed from the handle and config.
	assert.Equal(t, engine.ModelPath(), rec.ModelInfo.ModelPath)
	assert.Equal(t, DefaultConfidenceThreshold, rec.ModelInfo.ConfidenceThreshold)
	assert.Equal(t, engine.InputShape(), rec.ModelInfo.InputShape)
	assert.Equal(t, NumClasses, rec.ModelInfo.TotalClasses)
}

func TestDetectSignMissingImage(t *testing.T) {
	detector := newTestDetector(t, &fakeEngine{scores: simplexScores(0, 0.9)}, Config{})

	rec := detector.DetectSign("/does/not/exist.png")

	assert.False(t, rec.Detected)
	assert.Nil(t, rec.PrimaryDetection)
	assert.NotNil(t, rec.TopPredictions)
	assert.Empty(t, rec.TopPredictions)
	assert.NotEmpty(t, rec.Error)
	assert.Contains(t, rec.Error, "preprocess")
	assert.Zero(t, rec.InferenceTimeMs)
}

func TestDetectSignInferenceFailure(t *testing.T) {
	path := writeTestImage(t, "sign.png", uniformImage(32, 32, color.NRGBA{A: 255}))
	engine := &fakeEngine{err: stageError("inference", ErrInference, nil)}
	detector := newTestDetector(t, engine, Config{})

	rec := detector.DetectSign(path)

	assert.False(t, rec.Detected)
	assert.Contains(t, rec.Error, "inference")
	assert.Zero(t, rec.InferenceTimeMs)
}

func TestDetectSignMalformedScores(t *testing.T) {
	path := writeTestImage(t, "sign.png", uniformImage(32, 32, color.NRGBA{A: 255}))
	engine := &fakeEngine{scores: make([]float32, 7), elapsed: 1.5}
	detector := newTestDetector(t, engine, Config{})

	rec := detector.DetectSign(path)

	assert.False(t, rec.Detected)
	assert.Contains(t, rec.Error, "decode")
	// The forward pass ran, so its timing stays on the record.
	assert.Equal(t, 1.5, rec.InferenceTimeMs)
}

func TestDetectSignBelowThreshold(t *testing.T) {
	path := writeTestImage(t, "sign.png", uniformImage(32, 32, color.NRGBA{A: 255}))
	uniform := make([]float32, NumClasses)
	for i := range uniform {
		uniform[i] = 1.0 / NumClasses
	}
	detector := newTestDetector(t, &fakeEngine{scores: uniform, elapsed: 2}, Config{})

	rec := detector.DetectSign(path)

	assert.False(t, rec.Detected)
	assert.Nil(t, rec.PrimaryDetection)
	assert.Empty(t, rec.Error)
	// Diagnostics survive a miss.
	assert.Len(t, rec.TopPredictions, DefaultTopK)
}

func TestDetectBytes(t *testing.T) {
	data := encodePNG(t, uniformImage(20, 20, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))
	detector := newTestDetector(t, &fakeEngine{scores: simplexScores(3, 0.8), elapsed: 1}, Config{})

	rec := detector.DetectBytes("upload.png", data)
	assert.True(t, rec.Detected)
	assert.Equal(t, "upload.png", rec.ImagePath)

	rec = detector.DetectBytes("garbage.bin", []byte("garbage"))
	assert.False(t, rec.Detected)
	assert.True(t, strings.Contains(rec.Error, "image decode"), "error was %q", rec.Error)
}

func TestNewDetectorValidation(t *testing.T) {
	engine := &fakeEngine{scores: simplexScores(0, 0.9)}

	_, err := NewDetector(Config{ModelPath: "m.onnx", ConfidenceThreshold: 1.5}, engine, GTSRB(), nil)
	assert.Error(t, err)

	_, err = NewDetector(Config{ModelPath: "m.onnx", TopK: -1}, engine, GTSRB(), nil)
	assert.Error(t, err)

	_, err = NewDetector(Config{}, engine, GTSRB(), nil)
	assert.Error(t, err) // empty model path

	_, err = NewDetector(Config{ModelPath: "m.onnx"}, nil, GTSRB(), nil)
	assert.Error(t, err)

	_, err = NewDetector(Config{ModelPath: "m.onnx"}, &fakeEngine{classes: 10}, GTSRB(), nil)
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	detector := newTestDetector(t, &fakeEngine{scores: simplexScores(0, 0.9)}, Config{ModelPath: "m.onnx"})
	cfg := detector.Config()
	assert.Equal(t, DefaultConfidenceThreshold, cfg.ConfidenceThreshold)
	assert.Equal(t, DefaultTopK, cfg.TopK)
}
