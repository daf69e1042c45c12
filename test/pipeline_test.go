package test

import (
	"context"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-pantry/annotator"
	"github.com/nvr-ai/go-pantry/controller"
	"github.com/nvr-ai/go-pantry/detector"
	"github.com/nvr-ai/go-pantry/history"
	"github.com/nvr-ai/go-pantry/inventory"
	"github.com/nvr-ai/go-pantry/profiler"
)

type pipeline struct {
	ctrl      *controller.Controller
	model     *MockModel
	source    *MockFrameSource
	clipboard *MockClipboard
	display   *MockDisplay
	renderer  *MockRenderer
	history   *history.Store
	profiler  *profiler.RuntimeProfiler
}

func newPipeline(t *testing.T, model *MockModel) *pipeline {
	t.Helper()

	adapter, err := detector.NewAdapter(model)
	require.NoError(t, err)
	ann, err := annotator.New(annotator.DefaultFontSize)
	require.NoError(t, err)
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gen := NewMockFrameGenerator(320, 240)
	p := &pipeline{
		model:     model,
		source:    NewLoopingFrameSource(gen.GenerateObjectFrame(60, 60, 80)),
		clipboard: &MockClipboard{},
		display:   &MockDisplay{},
		renderer:  &MockRenderer{},
		history:   store,
		profiler:  profiler.NewRuntimeProfiler(profiler.ProfilingOptions{Namespace: "pipeline"}),
	}

	p.ctrl, err = controller.New(controller.Options{
		Open: func(id string) (controller.FrameSource, error) {
			return p.source, nil
		},
		Detector:     adapter,
		Annotator:    ann,
		Display:      p.display,
		Clipboard:    p.clipboard,
		Renderer:     p.renderer,
		History:      store,
		Profiler:     p.profiler,
		TickInterval: time.Hour,
		Logger:       zap.NewNop().Sugar(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.ctrl.Close() })
	return p
}

func (p *pipeline) do(t *testing.T, line string) controller.Status {
	t.Helper()
	return p.ctrl.Handle(context.Background(), controller.ParseCommand(line))
}

func TestPipelineCaptureEditExport(t *testing.T) {
	model := NewMockModel("apple", "banana", "milk").Then(
		Box(0, 0.91, 60, 60, 140, 140),
		Box(0, 0.55, 150, 40, 200, 90),
		Box(1, 0.49, 10, 10, 50, 50),
		Box(2, 0.80, 200, 120, 300, 230),
	)
	p := newPipeline(t, model)

	status := p.do(t, "connect")
	require.True(t, status.OK(), status.Message)
	assert.Equal(t, controller.MsgConnected, status.Message)

	status = p.do(t, "capture")
	require.True(t, status.OK(), status.Message)
	assert.Equal(t, []inventory.Row{
		{Label: "apple", Detected: 2, Quantity: "2"},
		{Label: "milk", Detected: 1, Quantity: "1"},
	}, status.Rows)

	status = p.do(t, "capture")
	require.True(t, status.OK(), status.Message)
	assert.Equal(t, []inventory.Row{
		{Label: "apple", Detected: 4, Quantity: "4"},
		{Label: "milk", Detected: 2, Quantity: "2"},
	}, status.Rows)

	require.True(t, p.do(t, "set apple 9").OK())
	require.True(t, p.do(t, "set milk zero").OK())

	status = p.do(t, "export")
	require.True(t, status.OK(), status.Message)
	assert.Equal(t, controller.MsgCopied, status.Message)
	assert.Equal(t, []string{"apple: 9"}, p.clipboard.Written())

	exports, err := p.history.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "apple: 9", exports[0].Text)
	assert.Equal(t, 9, exports[0].Items)

	assert.Equal(t, 2, model.Calls())
	assert.Len(t, p.renderer.Snapshots(), 4)
}

func TestPipelineTickShowsAnnotatedFrames(t *testing.T) {
	model := NewMockModel("apple").Then(Box(0, 0.9, 60, 60, 140, 140))
	p := newPipeline(t, model)

	require.True(t, p.do(t, "connect").OK())
	for i := 0; i < 3; i++ {
		p.ctrl.Tick(context.Background())
	}

	frames := p.display.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, image.Rect(0, 0, 320, 240), frames[0].Bounds())

	rows := p.ctrl.Rows()
	assert.Empty(t, rows, "ticks never touch the inventory")
}

func TestPipelineClearThenExport(t *testing.T) {
	model := NewMockModel("apple").Then(Box(0, 0.9, 60, 60, 140, 140))
	p := newPipeline(t, model)

	require.True(t, p.do(t, "connect").OK())
	require.True(t, p.do(t, "capture").OK())

	status := p.do(t, "clear")
	require.True(t, status.OK())
	assert.Equal(t, controller.MsgCleared, status.Message)

	status = p.do(t, "export")
	assert.False(t, status.OK())
	assert.Equal(t, controller.MsgNothingToCopy, status.Message)
	assert.ErrorIs(t, status.Err, controller.ErrNothingToExport)
	assert.Empty(t, p.clipboard.Written())

	n, err := p.history.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPipelineModelFailureKeepsInventory(t *testing.T) {
	model := NewMockModel("apple").
		Then(Box(0, 0.9, 60, 60, 140, 140)).
		ThenFail(assert.AnError)
	p := newPipeline(t, model)

	require.True(t, p.do(t, "connect").OK())
	require.True(t, p.do(t, "capture").OK())

	status := p.do(t, "capture")
	assert.False(t, status.OK())
	assert.Equal(t, controller.MsgCaptureFailed, status.Message)
	assert.ErrorIs(t, status.Err, controller.ErrCapture)

	var inferErr *detector.InferenceError
	assert.ErrorAs(t, status.Err, &inferErr)

	assert.Equal(t, []inventory.Row{{Label: "apple", Detected: 1, Quantity: "1"}}, p.ctrl.Rows())
}
