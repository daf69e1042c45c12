// Package test provides deterministic frames, models and collaborators for
// exercising the detection and inventory pipeline without a camera or an
// ONNX runtime.
package test

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-pantry/common"
	"github.com/nvr-ai/go-pantry/inventory"
)

// ErrEndOfFrames is returned by MockFrameSource once its script is exhausted.
var ErrEndOfFrames = errors.New("mock frame source exhausted")

// MockFrameGenerator creates deterministic test frames.
//
// @example
// gen := NewMockFrameGenerator(640, 480)
// frame := gen.GenerateStaticFrame()
type MockFrameGenerator struct {
	width  int
	height int
}

// NewMockFrameGenerator creates a new frame generator with specified dimensions.
//
// Arguments:
// - width: Frame width in pixels.
// - height: Frame height in pixels.
//
// Returns:
// - A configured MockFrameGenerator instance.
func NewMockFrameGenerator(width, height int) *MockFrameGenerator {
	return &MockFrameGenerator{width: width, height: height}
}

// GenerateStaticFrame creates a mid-gray frame.
func (g *MockFrameGenerator) GenerateStaticFrame() *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	draw.Draw(frame, frame.Bounds(), &image.Uniform{C: color.RGBA{128, 128, 128, 255}}, image.Point{}, draw.Src)
	return frame
}

// GenerateObjectFrame creates a frame with a bright square standing in for an
// object at the given position.
//
// Arguments:
// - x: X coordinate of the object.
// - y: Y coordinate of the object.
// - size: Side of the square in pixels.
func (g *MockFrameGenerator) GenerateObjectFrame(x, y, size int) *image.RGBA {
	frame := g.GenerateStaticFrame()
	rect := image.Rect(x, y, x+size, y+size)
	draw.Draw(frame, rect, &image.Uniform{C: color.RGBA{230, 40, 40, 255}}, image.Point{}, draw.Src)
	return frame
}

// MockModel returns scripted predictions, one entry per call. The last entry
// is repeated once the script runs out.
type MockModel struct {
	mu     sync.Mutex
	labels []string
	script [][]common.BoundingBox
	errs   []error
	calls  int
	closed bool
}

// NewMockModel creates a model that labels class i as labels[i].
func NewMockModel(labels ...string) *MockModel {
	return &MockModel{labels: labels}
}

// Then queues the boxes returned by the next call.
func (m *MockModel) Then(boxes ...common.BoundingBox) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, boxes)
	m.errs = append(m.errs, nil)
	return m
}

// ThenFail queues an error for the next call.
func (m *MockModel) ThenFail(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, nil)
	m.errs = append(m.errs, err)
	return m
}

// Predict implements detector.Model.
func (m *MockModel) Predict(ctx context.Context, frame image.Image) ([]common.BoundingBox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := m.calls
	m.calls++
	if len(m.script) == 0 {
		return nil, nil
	}
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	if m.errs[idx] != nil {
		return nil, m.errs[idx]
	}

	out := make([]common.BoundingBox, len(m.script[idx]))
	copy(out, m.script[idx])
	return out, nil
}

// Labels implements detector.Model.
func (m *MockModel) Labels() []string {
	return m.labels
}

// Close implements detector.Model.
func (m *MockModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns how many times Predict ran.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockModel) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Box builds a raw model box for class id with the given confidence.
func Box(classID int, confidence float32, x1, y1, x2, y2 float32) common.BoundingBox {
	return common.BoundingBox{ClassID: classID, Confidence: confidence, X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// MockFrameSource serves scripted frames. A nil frame in the script makes the
// corresponding Read fail.
type MockFrameSource struct {
	mu     sync.Mutex
	frames []image.Image
	reads  int
	closed bool
	repeat bool
}

// NewMockFrameSource creates a source that serves frames in order and then
// reports ErrEndOfFrames.
func NewMockFrameSource(frames ...image.Image) *MockFrameSource {
	return &MockFrameSource{frames: frames}
}

// NewLoopingFrameSource creates a source that keeps serving its last frame.
func NewLoopingFrameSource(frames ...image.Image) *MockFrameSource {
	return &MockFrameSource{frames: frames, repeat: true}
}

// Read returns the next scripted frame.
func (s *MockFrameSource) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("mock frame source closed")
	}
	idx := s.reads
	s.reads++
	if idx >= len(s.frames) {
		if !s.repeat || len(s.frames) == 0 {
			return nil, ErrEndOfFrames
		}
		idx = len(s.frames) - 1
	}
	if s.frames[idx] == nil {
		return nil, errors.Errorf("mock read %d failed", idx)
	}
	return s.frames[idx], nil
}

// Close marks the source closed.
func (s *MockFrameSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reads returns how many times Read was called.
func (s *MockFrameSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Closed reports whether Close was called.
func (s *MockFrameSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockClipboard records written text.
type MockClipboard struct {
	mu      sync.Mutex
	Err     error
	written []string
}

// Write implements controller.Clipboard.
func (c *MockClipboard) Write(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.written = append(c.written, text)
	return nil
}

// Written returns every successful write.
func (c *MockClipboard) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// MockDisplay records every image shown.
type MockDisplay struct {
	mu     sync.Mutex
	frames []image.Image
}

// Show implements controller.Display.
func (d *MockDisplay) Show(img image.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, img)
	return nil
}

// Frames returns the shown images.
func (d *MockDisplay) Frames() []image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]image.Image(nil), d.frames...)
}

// MockRenderer records every row snapshot.
type MockRenderer struct {
	mu        sync.Mutex
	snapshots [][]inventory.Row
}

// Render implements controller.Renderer.
func (r *MockRenderer) Render(rows []inventory.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, rows)
}

// Snapshots returns the recorded snapshots.
func (r *MockRenderer) Snapshots() [][]inventory.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]inventory.Row(nil), r.snapshots...)
}
