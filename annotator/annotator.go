// Package annotator draws detection overlays onto frames.
package annotator

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/nvr-ai/go-pantry/detector"
	"github.com/nvr-ai/go-pantry/images"
)

// DefaultFontSize is the label font size in points.
const DefaultFontSize = 13

var (
	boxColor     = color.RGBA{R: 255, A: 255}
	backingColor = color.RGBA{A: 255}
	textColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	boxLineWidth = 2
	// textLift is the gap between the label baseline and the box top.
	textLift = 5
)

// Annotator renders bounding boxes and captions. It keeps no per-frame state,
// so the same inputs always produce the same pixels.
type Annotator struct {
	// font.Face implementations cache glyphs and are not safe for concurrent use.
	mu      sync.Mutex
	face    font.Face
	descent float64
}

// New creates an annotator that captions with Go Regular at the given size.
//
// Arguments:
//   - size: The font size in points. Zero selects DefaultFontSize.
//
// Returns:
//   - *Annotator: The annotator.
//   - error: An error if the embedded font cannot be parsed.
func New(size float64) (*Annotator, error) {
	if size <= 0 {
		size = DefaultFontSize
	}

	ttf, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse label font")
	}

	face := truetype.NewFace(ttf, &truetype.Options{Size: size})
	return &Annotator{
		face:    face,
		descent: float64(face.Metrics().Descent.Ceil()),
	}, nil
}

// Annotate returns a copy of frame with every detection drawn on it, in the
// order given. Later detections draw over earlier ones. Neither frame nor
// detections are modified.
//
// Each detection gets a red box. Its caption is drawn white on a black backing
// just above the box's top-left corner, and the caption layer is blended at 50%
// so the pixels underneath remain visible.
//
// Arguments:
//   - frame: The source frame.
//   - detections: The detections to draw.
//
// Returns:
//   - *image.RGBA: The annotated image.
func (a *Annotator) Annotate(frame image.Image, detections []detector.Detection) *image.RGBA {
	bounds := frame.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), frame, bounds.Min, draw.Src)

	if len(detections) == 0 {
		return out
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	dc := gg.NewContextForRGBA(out)
	dc.SetFontFace(a.face)

	for i := range detections {
		det := detections[i]
		// Boxes are in frame coordinates, out starts at the origin.
		box := images.RectFromRectangle(det.Box.Rectangle().Sub(bounds.Min))

		dc.SetColor(boxColor)
		dc.SetLineWidth(boxLineWidth)
		dc.DrawRectangle(float64(box.X1), float64(box.Y1), float64(box.Dx()), float64(box.Dy()))
		dc.Stroke()

		text := det.Text()
		w, h := dc.MeasureString(text)

		region := image.Rect(
			box.X1,
			box.Y1-int(h+a.descent)-textLift-2,
			box.X1+int(w)+2,
			box.Y1+1,
		).Intersect(out.Bounds())
		if region.Empty() {
			continue
		}

		overlay := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
		draw.Draw(overlay, overlay.Bounds(), out, region.Min, draw.Src)

		oc := gg.NewContextForRGBA(overlay)
		oc.Translate(-float64(region.Min.X), -float64(region.Min.Y))
		oc.SetFontFace(a.face)
		oc.SetColor(backingColor)
		oc.DrawRectangle(float64(box.X1), float64(box.Y1)-h-a.descent, w, h+a.descent)
		oc.Fill()
		oc.SetColor(textColor)
		oc.DrawString(text, float64(box.X1), float64(box.Y1-textLift))

		blend(out, overlay, region)
	}

	return out
}

// blend mixes src into dst with equal weight inside r. src covers exactly r,
// anchored at its own origin. Pixels that are the same in both images are left
// untouched.
func blend(dst, src *image.RGBA, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := dst.PixOffset(r.Min.X, y)
		j := src.PixOffset(0, y-r.Min.Y)
		for n := 0; n < r.Dx()*4; n++ {
			dst.Pix[i+n] = uint8((uint16(dst.Pix[i+n]) + uint16(src.Pix[j+n]) + 1) / 2)
		}
	}
}
