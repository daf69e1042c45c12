// Package detector normalizes raw model output into labelled detections.
package detector

import (
	"context"
	"fmt"
	"image"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-pantry/common"
	"github.com/nvr-ai/go-pantry/images"
)

// ConfidenceThreshold is the minimum confidence (inclusive) a raw detection
// needs to be reported.
const ConfidenceThreshold = 0.50

// Detection is one labelled object found in a frame.
type Detection struct {
	Label      string
	Confidence float64
	Box        images.Rect
}

// Text returns the overlay caption for the detection, e.g. "apple (87.5%)".
func (d Detection) Text() string {
	return fmt.Sprintf("%s (%.1f%%)", d.Label, d.Confidence*100)
}

// Model is the object detection model the adapter wraps.
type Model interface {
	// Predict runs the model once over the frame. Boxes are in frame
	// coordinates.
	Predict(ctx context.Context, frame image.Image) ([]common.BoundingBox, error)
	// Labels maps class indexes to class names.
	Labels() []string
	Close() error
}

// InferenceError is returned when the underlying model invocation fails.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "inference failed: " + e.Err.Error()
}

// Unwrap returns the model error.
func (e *InferenceError) Unwrap() error { return e.Err }

// Cause returns the model error for github.com/pkg/errors.Cause.
func (e *InferenceError) Cause() error { return e.Err }

// Adapter invokes a Model and converts its output into Detections.
type Adapter struct {
	model Model
}

// NewAdapter wraps a model.
//
// Arguments:
//   - model: The detection model. Must not be nil.
//
// Returns:
//   - *Adapter: The adapter.
//   - error: An error if no model was supplied.
func NewAdapter(model Model) (*Adapter, error) {
	if model == nil {
		return nil, errors.New("detector requires a model")
	}
	return &Adapter{model: model}, nil
}

// Infer runs the model once over the frame and returns every detection with
// a confidence of at least ConfidenceThreshold, in model output order.
//
// Arguments:
//   - ctx: The context for the model call.
//   - frame: The frame to run detection on.
//
// Returns:
//   - []Detection: The filtered detections.
//   - error: An *InferenceError if the model failed.
func (a *Adapter) Infer(ctx context.Context, frame image.Image) ([]Detection, error) {
	if frame == nil {
		return nil, &InferenceError{Err: errors.New("frame is nil")}
	}

	raw, err := a.model.Predict(ctx, frame)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}

	labels := a.model.Labels()
	bounds := frame.Bounds()

	detections := make([]Detection, 0, len(raw))
	for i := range raw {
		confidence := float64(raw[i].Confidence)
		// NaN fails every comparison and must not pass the filter.
		if !(confidence >= ConfidenceThreshold) {
			continue
		}
		detections = append(detections, Detection{
			Label:      labelFor(labels, raw[i].ClassID),
			Confidence: confidence,
			Box:        raw[i].ToRect().Clamp(bounds),
		})
	}

	return detections, nil
}

// Close releases the wrapped model.
func (a *Adapter) Close() error {
	return a.model.Close()
}

// labelFor returns the class name for a given class index.
func labelFor(labels []string, classID int) string {
	if classID >= 0 && classID < len(labels) {
		return labels[classID]
	}
	return fmt.Sprintf("unknown_%d", classID)
}
