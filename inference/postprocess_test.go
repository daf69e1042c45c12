package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-pantry/common"
)

// tensor builds a 1 x (4+classes) x anchors output with every score zero.
type tensor struct {
	layout OutputLayout
	data   []float32
}

func newTensor(classes, anchors, inputSize int) *tensor {
	return &tensor{
		layout: OutputLayout{Classes: classes, Anchors: anchors, InputSize: inputSize},
		data:   make([]float32, (4+classes)*anchors),
	}
}

func (t *tensor) set(anchor int, xc, yc, w, h float32, scores ...float32) {
	n := t.layout.Anchors
	t.data[anchor] = xc
	t.data[n+anchor] = yc
	t.data[2*n+anchor] = w
	t.data[3*n+anchor] = h
	for c, s := range scores {
		t.data[n*(4+c)+anchor] = s
	}
}

func TestAnchorCount(t *testing.T) {
	assert.Equal(t, 8400, AnchorCount(640))
	assert.Equal(t, 2100, AnchorCount(320))
}

func TestProcessOutputScalesToOriginal(t *testing.T) {
	out := newTensor(2, 4, 100)
	out.set(0, 50, 50, 20, 40, 0.1, 0.9)

	boxes := ProcessOutput(out.data, out.layout, 200, 100, 0.25, 0.7)
	require.Len(t, boxes, 1)

	b := boxes[0]
	assert.Equal(t, 1, b.ClassID)
	assert.InDelta(t, 0.9, b.Confidence, 1e-6)
	assert.InDelta(t, 80, b.X1, 1e-4)
	assert.InDelta(t, 30, b.Y1, 1e-4)
	assert.InDelta(t, 120, b.X2, 1e-4)
	assert.InDelta(t, 70, b.Y2, 1e-4)
}

func TestProcessOutputDropsLowScoresAndClamps(t *testing.T) {
	out := newTensor(1, 3, 100)
	out.set(0, 5, 5, 20, 20, 0.1)
	out.set(1, 95, 95, 20, 20, 0.6)

	boxes := ProcessOutput(out.data, out.layout, 100, 100, 0.25, 0.7)
	require.Len(t, boxes, 1)
	assert.Equal(t, float32(100), boxes[0].X2)
	assert.Equal(t, float32(100), boxes[0].Y2)
}

func TestProcessOutputRejectsShortBuffer(t *testing.T) {
	assert.Nil(t, ProcessOutput(make([]float32, 3), OutputLayout{Classes: 1, Anchors: 4, InputSize: 10}, 10, 10, 0, 0.5))
}

func TestNonMaxSuppression(t *testing.T) {
	boxes := []common.BoundingBox{
		{ClassID: 0, Confidence: 0.6, X1: 0, Y1: 0, X2: 100, Y2: 100},
		{ClassID: 0, Confidence: 0.9, X1: 5, Y1: 5, X2: 100, Y2: 100},
		{ClassID: 1, Confidence: 0.7, X1: 0, Y1: 0, X2: 100, Y2: 100},
		{ClassID: 0, Confidence: 0.8, X1: 300, Y1: 300, X2: 400, Y2: 400},
	}

	kept := NonMaxSuppression(boxes, 0.7)
	require.Len(t, kept, 3)
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-6)
	assert.InDelta(t, 0.8, kept[1].Confidence, 1e-6)
	assert.Equal(t, 1, kept[2].ClassID)
}

func TestPrepareInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 0, B: 51, A: 255})
		}
	}

	dst := make([]float32, 3*4*4)
	require.NoError(t, PrepareInput(img, dst, 4))

	assert.InDelta(t, 1.0, dst[0], 0.01)
	assert.InDelta(t, 0.0, dst[16], 0.01)
	assert.InDelta(t, 0.2, dst[32], 0.01)

	assert.Error(t, PrepareInput(img, make([]float32, 10), 4))
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		name    string
		want    Provider
		wantErr bool
	}{
		{"", ProviderCPU, false},
		{"cpu", ProviderCPU, false},
		{" CUDA ", ProviderCUDA, false},
		{"coreml", ProviderCoreML, false},
		{"OpenVINO", ProviderOpenVINO, false},
		{"tpu", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProvider(tt.name)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got)
	}
}
