package common

import (
	"fmt"
	"image"

	"github.com/nvr-ai/go-pantry/images"
)

// BoundingBox is a raw model output box in original image coordinates, before
// it has been mapped to a class label.
type BoundingBox struct {
	ClassID        int
	Confidence     float32
	X1, Y1, X2, Y2 float32
}

func (b *BoundingBox) String() string {
	return fmt.Sprintf("Object %d (confidence %f): (%f, %f), (%f, %f)",
		b.ClassID, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}

// ToRect converts the bounding box to integer pixel coordinates.
//
// This loses precision, but the box has already been scaled up to the
// original image's dimensions, so only fractional pixels around the edges
// are lost.
//
// Returns:
// - An images.Rect with canonicalized coordinates.
//
// @example
// box := BoundingBox{X1: 100.5, Y1: 100.5, X2: 200.5, Y2: 300.5}
// rect := box.ToRect() // (100,100)-(200,300)
func (b *BoundingBox) ToRect() images.Rect {
	return images.RectFromRectangle(image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)))
}

// IoU calculates the Intersection over Union between two bounding boxes.
//
// This won't be entirely precise due to the conversion to integral
// rectangles, but it is only used to estimate which boxes overlap too much
// during Non-Maximum Suppression.
//
// Arguments:
// - other: The other bounding box to calculate IoU with.
//
// Returns:
// - The IoU value between 0 and 1.
func (b *BoundingBox) IoU(other *BoundingBox) float32 {
	return images.CalculateIoU(b.ToRect(), other.ToRect())
}
