package models

import "time"

// PredictionEntry is one ranked class prediction. Confidence is a
// normalized probability in [0,1].
type PredictionEntry struct {
	ClassID    int     `json:"class_id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ModelInfo is the configuration snapshot echoed on every DetectionRecord.
// It is built once when the detector is constructed, never per call.
type ModelInfo struct {
	ModelPath           string  `json:"model_path"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	InputShape          []int64 `json:"input_shape"`
	TotalClasses        int     `json:"total_classes"`
}

// DetectionRecord is the result of classifying one image. A failed image
// still produces a well-formed record: Detected is false, the prediction
// list is empty and Error carries a human-readable cause. InferenceTimeMs
// is zero (and omitted from JSON) when the image never reached the
// inference stage.
type DetectionRecord struct {
	ImagePath        string            `json:"image_path"`
	Timestamp        time.Time         `json:"timestamp"`
	InferenceTimeMs  float64           `json:"inference_time_ms,omitempty"`
	Detected         bool              `json:"detected"`
	PrimaryDetection *PredictionEntry  `json:"primary_detection,omitempty"`
	TopPredictions   []PredictionEntry `json:"top_predictions"`
	ModelInfo        ModelInfo         `json:"model_info"`
	Error            string            `json:"error,omitempty"`
}

// BatchSummary aggregates a completed sequence of detection records.
type BatchSummary struct {
	TotalImages            int       `json:"total_images"`
	SuccessfulDetections   int       `json:"successful_detections"`
	FailedDetections       int       `json:"failed_detections"`
	SuccessRate            float64   `json:"success_rate"`
	AverageInferenceTimeMs float64   `json:"average_inference_time_ms"`
	DetectionTimestamp     time.Time `json:"detection_timestamp"`
}

// Report is the document other systems consume: summary first, then the
// records in their original input order.
type Report struct {
	DetectionSummary BatchSummary      `json:"detection_summary"`
	Detections       []DetectionRecord `json:"detections"`
}

// ProcessingTimings breaks down where one detection spent its time.
type ProcessingTimings struct {
	ImagePath  string
	Preprocess time.Duration
	Inference  time.Duration
	Decode     time.Duration
	Total      time.Duration
}
