// Package inference - ONNX Runtime backed object detection.
package inference

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// SessionArgs describes the tensors and threading of a detection session.
type SessionArgs struct {
	// ModelPath is the path to the .onnx file.
	ModelPath string
	// InputName and OutputName are the graph's tensor names.
	InputName  string
	OutputName string
	// InputSize is the square side the model was exported with.
	InputSize int
	// Channels is the output row count, 4 box values plus one per class.
	Channels int
	// Anchors is the number of candidate boxes the model emits.
	Anchors int
	// IntraOpThreads and InterOpThreads are passed to onnxruntime. Zero
	// keeps the runtime default.
	IntraOpThreads int
	InterOpThreads int
	// Provider selects the execution provider; DeviceID picks the
	// accelerator for providers that have several.
	Provider Provider
	DeviceID int
}

// Session represents a model session from the onnxruntime.
type Session struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

// NewSession allocates the input and output tensors and binds them to a new
// session. InitializeRuntime must have succeeded first.
//
// Arguments:
//   - args: The session description.
//
// Returns:
//   - *Session: The session.
//   - error: An error if any native allocation fails.
func NewSession(args SessionArgs) (*Session, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(args.InputSize), int64(args.InputSize)))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(args.Channels), int64(args.Anchors)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()

	if args.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(args.IntraOpThreads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, errors.Wrap(err, "error setting intra-op threads")
		}
	}
	if args.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(args.InterOpThreads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, errors.Wrap(err, "error setting inter-op threads")
		}
	}

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error setting graph optimization level")
	}

	if err := applyProvider(options, args.Provider, args.DeviceID); err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		[]string{args.InputName},
		[]string{args.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "error creating ORT session for %s", args.ModelPath)
	}

	return &Session{
		Session: session,
		Input:   input,
		Output:  output,
	}, nil
}

// Run executes the model on whatever is currently in the input tensor.
func (s *Session) Run() error {
	if s.Session == nil {
		return errors.New("session is closed")
	}
	return s.Session.Run()
}

// Close releases the resources associated with the Session.
//
// Returns:
//   - No return values.
func (s *Session) Close() {
	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Output != nil {
		s.Output.Destroy()
		s.Output = nil
	}
	if s.Session != nil {
		s.Session.Destroy()
		s.Session = nil
	}
}
