// Package images - Image geometry utilities
package images

import (
	"fmt"
	"image"
)

// Rect is a lightweight integer bounding box in pixel coordinates.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// RectFromRectangle converts an image.Rectangle into a canonical Rect.
//
// Arguments:
//   - r: The rectangle to convert.
//
// Returns:
//   - Rect: The rectangle with X1 <= X2 and Y1 <= Y2.
func RectFromRectangle(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Rectangle returns the image.Rectangle equivalent of r.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Canon returns the canonical version of r, swapping coordinates so that
// X1 <= X2 and Y1 <= Y2.
func (r Rect) Canon() Rect {
	if r.X2 < r.X1 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y2 < r.Y1 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

// Valid reports whether r is canonical.
func (r Rect) Valid() bool {
	return r.X1 <= r.X2 && r.Y1 <= r.Y2
}

// Dx returns the width of r.
func (r Rect) Dx() int {
	return r.X2 - r.X1
}

// Dy returns the height of r.
func (r Rect) Dy() int {
	return r.Y2 - r.Y1
}

// Area returns the area of r in pixels.
func (r Rect) Area() int {
	return r.Dx() * r.Dy()
}

// Clamp limits r to the given bounds. The result is empty (but still
// canonical) when r lies entirely outside of bounds.
func (r Rect) Clamp(bounds image.Rectangle) Rect {
	return RectFromRectangle(r.Canon().Rectangle().Intersect(bounds))
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU computes the Intersection over Union of two rectangles.
//
// IoU = Area of Intersection / Area of Union
//
//   - 1.0 means the rectangles are identical.
//   - 0.0 means the rectangles don't overlap at all.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iouScore := CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	// The overlap starts at the larger of the two minimums and ends at the
	// smaller of the two maximums.
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea

	return float32(interArea) / float32(unionArea)
}
