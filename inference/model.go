package inference

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-pantry/common"
)

const (
	// DefaultInputSize is the input side of stock YOLOv8/YOLO11 exports.
	DefaultInputSize = 640
	// DefaultNMSThreshold is the IoU above which same-class boxes merge.
	DefaultNMSThreshold = 0.7
	// CandidateConfidence is the score floor for decoding. The detector
	// applies the reporting threshold on top of it.
	CandidateConfidence = 0.25
)

// ModelArgs configures an ONNX detection model.
type ModelArgs struct {
	ModelPath      string
	Labels         []string
	InputSize      int
	NMSThreshold   float32
	IntraOpThreads int
	InterOpThreads int
	Provider       Provider
	DeviceID       int
}

// Model is an onnxruntime-backed detector.Model for YOLOv8-style exports.
//
// Predict calls are serialized because the session's tensors are reused.
type Model struct {
	mu      sync.Mutex
	session *Session
	labels  []string
	layout  OutputLayout
	nms     float32
}

// NewModel loads the model at args.ModelPath. InitializeRuntime must have
// succeeded first.
//
// Arguments:
//   - args: The model configuration. Labels must be non-empty.
//
// Returns:
//   - *Model: The loaded model.
//   - error: An error if the configuration is invalid or loading fails.
func NewModel(args ModelArgs) (*Model, error) {
	if len(args.Labels) == 0 {
		return nil, errors.New("model requires at least one class label")
	}
	if args.InputSize <= 0 {
		args.InputSize = DefaultInputSize
	}
	if args.NMSThreshold <= 0 {
		args.NMSThreshold = DefaultNMSThreshold
	}

	layout := OutputLayout{
		Classes:   len(args.Labels),
		Anchors:   AnchorCount(args.InputSize),
		InputSize: args.InputSize,
	}

	session, err := NewSession(SessionArgs{
		ModelPath:      args.ModelPath,
		InputName:      "images",
		OutputName:     "output0",
		InputSize:      args.InputSize,
		Channels:       4 + layout.Classes,
		Anchors:        layout.Anchors,
		IntraOpThreads: args.IntraOpThreads,
		InterOpThreads: args.InterOpThreads,
		Provider:       args.Provider,
		DeviceID:       args.DeviceID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load detection model")
	}

	return &Model{
		session: session,
		labels:  append([]string(nil), args.Labels...),
		layout:  layout,
		nms:     args.NMSThreshold,
	}, nil
}

// Predict runs the model once over frame.
func (m *Model) Predict(ctx context.Context, frame image.Image) ([]common.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, errors.New("model not loaded")
	}

	if err := PrepareInput(frame, m.session.Input.GetData(), m.layout.InputSize); err != nil {
		return nil, errors.Wrap(err, "failed to prepare input")
	}
	if err := m.session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	b := frame.Bounds()
	return ProcessOutput(
		m.session.Output.GetData(),
		m.layout,
		b.Dx(), b.Dy(),
		CandidateConfidence, m.nms,
	), nil
}

// Labels returns the class names in index order.
func (m *Model) Labels() []string {
	return m.labels
}

// Close releases the session.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
	return nil
}
