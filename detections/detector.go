package detections

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/trafficvision/sign-detection-service/models"
)

// Config is the immutable detector configuration, validated once at
// construction.
type Config struct {
	ModelPath           string
	ConfidenceThreshold float64
	TopK                int
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	return c
}

func (c Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("model path must not be empty")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v outside [0,1]", c.ConfidenceThreshold)
	}
	if c.TopK < 1 {
		return fmt.Errorf("top-k must be at least 1, got %d", c.TopK)
	}
	return nil
}

// Engine is the slice of ModelSession the pipeline needs. Tests substitute
// a fake; production always passes a *ModelSession.
type Engine interface {
	Infer(input []float32) (scores []float32, elapsedMs float64, err error)
	ModelPath() string
	InputShape() []int64
	ClassCount() int
}

// Detector coordinates the per-image pipeline: preprocess, infer, decode,
// assemble the record. Misconfiguration fails loudly here; bad input never
// does, it comes back inside the record.
type Detector struct {
	cfg     Config
	engine  Engine
	catalog *Catalog
	info    models.ModelInfo
	log     *zap.SugaredLogger
}

func NewDetector(cfg Config, engine Engine, catalog *Catalog, logger *zap.SugaredLogger) (*Detector, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("detector config: %w", err)
	}
	if engine == nil {
		return nil, fmt.Errorf("detector: engine must not be nil")
	}
	if catalog == nil {
		return nil, fmt.Errorf("detector: catalog must not be nil")
	}
	if engine.ClassCount() != catalog.Size() {
		return nil, fmt.Errorf("detector: model has %d classes, catalog has %d",
			engine.ClassCount(), catalog.Size())
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Detector{
		cfg:     cfg,
		engine:  engine,
		catalog: catalog,
		info: models.ModelInfo{
			ModelPath:           engine.ModelPath(),
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			InputShape:          engine.InputShape(),
			TotalClasses:        engine.ClassCount(),
		},
		log: logger,
	}, nil
}

// Config returns the validated configuration the detector runs with.
func (d *Detector) Config() Config { return d.cfg }

// DetectSign classifies the image at path. Expected failures (unreadable
// image, inference fault, malformed score vector) never escape as a Go
// error: the record comes back with Detected=false and Error set.
func (d *Detector) DetectSign(path string) models.DetectionRecord {
	total := time.Now()
	rec := d.newRecord(path)
	timings := models.ProcessingTimings{ImagePath: path}

	prepStart := time.Now()
	tensor, err := PrepareFile(path)
	timings.Preprocess = time.Since(prepStart)
	if err != nil {
		return d.failed(rec, err)
	}

	rec = d.classify(rec, tensor, &timings)
	timings.Total = time.Since(total)
	d.logTimings(&timings)
	return rec
}

// DetectBytes classifies an in-memory encoded image; name only labels the
// record.
func (d *Detector) DetectBytes(name string, data []byte) models.DetectionRecord {
	total := time.Now()
	rec := d.newRecord(name)
	timings := models.ProcessingTimings{ImagePath: name}

	prepStart := time.Now()
	tensor, err := PrepareBytes(data)
	timings.Preprocess = time.Since(prepStart)
	if err != nil {
		return d.failed(rec, err)
	}

	rec = d.classify(rec, tensor, &timings)
	timings.Total = time.Since(total)
	d.logTimings(&timings)
	return rec
}

func (d *Detector) newRecord(path string) models.DetectionRecord {
	return models.DetectionRecord{
		ImagePath:      path,
		Timestamp:      time.Now(),
		TopPredictions: []models.PredictionEntry{},
		ModelInfo:      d.info,
	}
}

func (d *Detector) classify(rec models.DetectionRecord, tensor *Tensor, timings *models.ProcessingTimings) models.DetectionRecord {
	scores, elapsedMs, err := d.engine.Infer(tensor.Data)
	timings.Inference = time.Duration(elapsedMs * float64(time.Millisecond))
	if err != nil {
		return d.failed(rec, err)
	}
	rec.InferenceTimeMs = round2(elapsedMs)

	decodeStart := time.Now()
	top, primary, err := Decode(scores, d.catalog, d.cfg.ConfidenceThreshold, d.cfg.TopK)
	timings.Decode = time.Since(decodeStart)
	if err != nil {
		// The forward pass did run, so the timing stays on the record.
		return d.failed(rec, err)
	}

	rec.TopPredictions = top
	rec.PrimaryDetection = primary
	rec.Detected = primary != nil
	return rec
}

func (d *Detector) failed(rec models.DetectionRecord, err error) models.DetectionRecord {
	rec.Detected = false
	rec.PrimaryDetection = nil
	rec.TopPredictions = []models.PredictionEntry{}
	rec.Error = err.Error()
	d.log.Warnf("detection failed for %s: %v", rec.ImagePath, err)
	return rec
}

func (d *Detector) logTimings(t *models.ProcessingTimings) {
	d.log.Debugf("%s: preprocess=%v inference=%v decode=%v total=%v",
		t.ImagePath, t.Preprocess, t.Inference, t.Decode, t.Total)
}

// round2 matches the report format: milliseconds and percentages carry two
// decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
