package inference

import (
	"sort"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-pantry/common"
)

// OutputLayout describes a YOLOv8-style output tensor of shape
// 1 x (4 + Classes) x Anchors, stored row-major.
type OutputLayout struct {
	Classes   int
	Anchors   int
	InputSize int
}

// AnchorCount returns the number of candidate boxes a YOLOv8 head emits for a
// square input (strides 8, 16 and 32).
func AnchorCount(inputSize int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := inputSize / stride
		n += side * side
	}
	return n
}

// ProcessOutput decodes raw model output into boxes in original image
// coordinates and suppresses overlapping boxes of the same class.
//
// Arguments:
//   - output: The raw output tensor data.
//   - layout: The tensor layout.
//   - originalWidth, originalHeight: Size of the frame the input was built from.
//   - minConfidence: Candidates below this score are dropped before NMS.
//   - nmsThreshold: Boxes overlapping a stronger box of the same class by more
//     than this IoU are dropped.
//
// Returns:
//   - []common.BoundingBox: The surviving boxes, strongest first.
func ProcessOutput(
	output []float32,
	layout OutputLayout,
	originalWidth, originalHeight int,
	minConfidence, nmsThreshold float32,
) []common.BoundingBox {
	n := layout.Anchors
	if n == 0 || layout.Classes == 0 || len(output) < n*(4+layout.Classes) {
		return nil
	}

	scaleX := float32(originalWidth) / float32(layout.InputSize)
	scaleY := float32(originalHeight) / float32(layout.InputSize)
	maxX := float32(originalWidth)
	maxY := float32(originalHeight)

	boxes := make([]common.BoundingBox, 0, 64)
	for idx := 0; idx < n; idx++ {
		classID := 0
		probability := math32.Inf(-1)
		for col := 0; col < layout.Classes; col++ {
			if p := output[n*(col+4)+idx]; p > probability {
				probability = p
				classID = col
			}
		}
		if probability < minConfidence {
			continue
		}

		xc, yc := output[idx], output[n+idx]
		w, h := output[2*n+idx], output[3*n+idx]

		boxes = append(boxes, common.BoundingBox{
			ClassID:    classID,
			Confidence: probability,
			X1:         clamp((xc-w/2)*scaleX, maxX),
			Y1:         clamp((yc-h/2)*scaleY, maxY),
			X2:         clamp((xc+w/2)*scaleX, maxX),
			Y2:         clamp((yc+h/2)*scaleY, maxY),
		})
	}

	return NonMaxSuppression(boxes, nmsThreshold)
}

// NonMaxSuppression keeps the strongest box of every overlapping group of
// same-class boxes. The input slice is reordered.
func NonMaxSuppression(boxes []common.BoundingBox, threshold float32) []common.BoundingBox {
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})

	kept := make([]common.BoundingBox, 0, len(boxes))
	for i := range boxes {
		suppressed := false
		for j := range kept {
			if kept[j].ClassID == boxes[i].ClassID && boxes[i].IoU(&kept[j]) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, boxes[i])
		}
	}
	return kept
}

func clamp(v, hi float32) float32 {
	return math32.Min(math32.Max(v, 0), hi)
}
