package detections

import (
	"fmt"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

// ModelSession owns one loaded copy of the network together with its bound
// input and output tensors. It is reusable for the process lifetime, but a
// single session must not run concurrent Infer calls; use one session per
// worker for that.
type ModelSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	modelPath  string
	inputShape []int64
	classCount int
}

// NewModelSession loads the ONNX artifact at modelPath and validates that
// it exposes exactly one rank-4 image input of InputHeight x InputWidth x
// InputChannels and one output of classCount scores. Any failure here is a
// model load error, the one fatal class.
func NewModelSession(modelPath string, classCount int) (*ModelSession, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, stageError("load", ErrModelLoad, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, stageError("load", ErrModelLoad,
			fmt.Errorf("want exactly 1 input and 1 output tensor, model has %d and %d",
				len(inputs), len(outputs)))
	}

	inputShape, err := concreteShape(inputs[0].Dimensions,
		[]int64{1, InputHeight, InputWidth, InputChannels})
	if err != nil {
		return nil, stageError("load", ErrModelLoad,
			fmt.Errorf("input %q: %w", inputs[0].Name, err))
	}
	if n := tensorLen(inputShape); n != InputHeight*InputWidth*InputChannels {
		return nil, stageError("load", ErrModelLoad,
			fmt.Errorf("input %q holds %d values, want %d (%dx%dx%d)",
				inputs[0].Name, n, InputHeight*InputWidth*InputChannels,
				InputHeight, InputWidth, InputChannels))
	}

	outputShape, err := concreteShape(outputs[0].Dimensions,
		[]int64{1, int64(classCount)})
	if err != nil {
		return nil, stageError("load", ErrModelLoad,
			fmt.Errorf("output %q: %w", outputs[0].Name, err))
	}
	if n := tensorLen(outputShape); n != int64(classCount) {
		return nil, stageError("load", ErrModelLoad,
			fmt.Errorf("output %q holds %d values, want %d classes",
				outputs[0].Name, n, classCount))
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		return nil, stageError("load", ErrModelLoad, err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, stageError("load", ErrModelLoad, err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, stageError("load", ErrModelLoad, err)
	}

	return &ModelSession{
		session:    session,
		input:      inputTensor,
		output:     outputTensor,
		modelPath:  modelPath,
		inputShape: inputShape,
		classCount: classCount,
	}, nil
}

// Infer binds input, runs one forward pass and returns a copy of the score
// vector plus the wall-clock latency of the execution span only, in
// milliseconds. An inference failure is local to the call; the session
// stays valid.
func (m *ModelSession) Infer(input []float32) ([]float32, float64, error) {
	dst := m.input.GetData()
	if len(input) != len(dst) {
		return nil, 0, stageError("inference", ErrInference,
			fmt.Errorf("input has %d values, model expects %d", len(input), len(dst)))
	}
	copy(dst, input)

	start := time.Now()
	if err := m.session.Run(); err != nil {
		return nil, 0, stageError("inference", ErrInference, err)
	}
	elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)

	out := m.output.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, elapsedMs, nil
}

func (m *ModelSession) ModelPath() string { return m.modelPath }

func (m *ModelSession) InputShape() []int64 {
	shape := make([]int64, len(m.inputShape))
	copy(shape, m.inputShape)
	return shape
}

func (m *ModelSession) ClassCount() int { return m.classCount }

func (m *ModelSession) Destroy() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
}

// concreteShape fills dynamic dimensions (exported as -1 or 0) from
// fallback and rejects rank mismatches.
func concreteShape(dims []int64, fallback []int64) ([]int64, error) {
	if len(dims) != len(fallback) {
		return nil, fmt.Errorf("rank %d shape %v, want rank %d", len(dims), dims, len(fallback))
	}
	shape := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			shape[i] = fallback[i]
		} else {
			shape[i] = d
		}
	}
	return shape, nil
}

func tensorLen(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
