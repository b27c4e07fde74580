package detections

import (
	"errors"
	"fmt"
)

// Error classes. ErrModelLoad is fatal: it happens once at startup and
// nothing can run without a valid session. Every other class is caught at
// the per-image boundary and recorded on the DetectionRecord instead of
// propagating.
var (
	ErrImageDecode = errors.New("image decode error")
	ErrShape       = errors.New("shape error")
	ErrModelLoad   = errors.New("model load error")
	ErrInference   = errors.New("inference error")
	ErrScores      = errors.New("score decode error")
)

// StageError tags a failure with the pipeline stage it came from, so a
// failed record can say which step broke and why.
type StageError struct {
	Stage string
	Class error
	Cause error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Class, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Class)
}

func (e *StageError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Class, e.Cause}
	}
	return []error{e.Class}
}

func stageError(stage string, class, cause error) error {
	return &StageError{Stage: stage, Class: class, Cause: cause}
}
