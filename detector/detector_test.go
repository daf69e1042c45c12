package detector_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-pantry/detector"
	"github.com/nvr-ai/go-pantry/images"
	"github.com/nvr-ai/go-pantry/test"
)

func TestNewAdapterRequiresModel(t *testing.T) {
	_, err := detector.NewAdapter(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a model")
}

func TestInferThreshold(t *testing.T) {
	tests := []struct {
		name       string
		confidence float32
		kept       bool
	}{
		{"just below", 0.499, false},
		{"exactly at threshold", 0.50, true},
		{"above", 0.9, true},
		{"zero", 0, false},
		{"not a number", float32(math.NaN()), false},
	}

	frame := test.NewMockFrameGenerator(640, 480).GenerateStaticFrame()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := test.NewMockModel("apple").Then(test.Box(0, tt.confidence, 10, 10, 50, 50))
			adapter, err := detector.NewAdapter(model)
			require.NoError(t, err)

			dets, err := adapter.Infer(context.Background(), frame)
			require.NoError(t, err)
			if tt.kept {
				require.Len(t, dets, 1)
				assert.Equal(t, "apple", dets[0].Label)
			} else {
				assert.Empty(t, dets)
			}
		})
	}
}

func TestInferNormalizesBoxes(t *testing.T) {
	frame := test.NewMockFrameGenerator(100, 80).GenerateStaticFrame()
	model := test.NewMockModel("apple", "banana").Then(
		test.Box(1, 0.7, 60.9, 70.2, 20.1, 10.8),
		test.Box(0, 0.8, -15, -5, 150, 90),
		test.Box(7, 0.6, 1, 1, 2, 2),
	)
	adapter, err := detector.NewAdapter(model)
	require.NoError(t, err)

	dets, err := adapter.Infer(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, dets, 3)

	assert.Equal(t, detector.Detection{Label: "banana", Confidence: float64(float32(0.7)), Box: images.Rect{X1: 20, Y1: 10, X2: 60, Y2: 70}}, dets[0])
	assert.Equal(t, images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 80}, dets[1].Box)
	assert.Equal(t, "unknown_7", dets[2].Label)

	for _, d := range dets {
		assert.True(t, d.Box.Valid())
	}
}

func TestInferPropagatesModelFailure(t *testing.T) {
	cause := errors.New("runtime exploded")
	model := test.NewMockModel("apple").ThenFail(cause)
	adapter, err := detector.NewAdapter(model)
	require.NoError(t, err)

	frame := test.NewMockFrameGenerator(32, 32).GenerateStaticFrame()
	dets, err := adapter.Infer(context.Background(), frame)
	assert.Nil(t, dets)

	var inferr *detector.InferenceError
	require.ErrorAs(t, err, &inferr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, model.Calls())
}

func TestInferRejectsNilFrame(t *testing.T) {
	model := test.NewMockModel("apple")
	adapter, err := detector.NewAdapter(model)
	require.NoError(t, err)

	_, err = adapter.Infer(context.Background(), nil)
	var inferr *detector.InferenceError
	assert.ErrorAs(t, err, &inferr)
	assert.Zero(t, model.Calls())
}

func TestDetectionText(t *testing.T) {
	d := detector.Detection{Label: "apple", Confidence: 0.875}
	assert.Equal(t, "apple (87.5%)", d.Text())
}

func TestAdapterClose(t *testing.T) {
	model := test.NewMockModel()
	adapter, err := detector.NewAdapter(model)
	require.NoError(t, err)
	require.NoError(t, adapter.Close())
	assert.True(t, model.Closed())
}
