// Package camera opens frame sources: local capture devices, network streams,
// video files and directories of still frames.
package camera

import (
	"image"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrEndOfStream is returned by Read once a finite source has no more frames.
var ErrEndOfStream = errors.New("end of stream")

// Source is an open frame source.
type Source interface {
	Read() (image.Image, error)
	Close() error
}

// Open opens the source named by id:
//   - "" opens capture device 0,
//   - a non-negative integer opens that capture device,
//   - a directory replays its image files in frame order,
//   - anything else (stream URL, video file) is handed to OpenCV.
//
// Arguments:
//   - id: The source identifier.
//
// Returns:
//   - Source: The opened source.
//   - error: An error if the source cannot be opened.
func Open(id string) (Source, error) {
	id = strings.TrimSpace(id)

	if info, err := os.Stat(id); id != "" && err == nil && info.IsDir() {
		replay, err := OpenDirectory(id, false)
		if err != nil {
			return nil, err
		}
		return replay, nil
	}

	var (
		capture *Capture
		err     error
	)
	if id == "" {
		capture, err = OpenDevice(0)
	} else if n, convErr := strconv.Atoi(id); convErr == nil && n >= 0 {
		capture, err = OpenDevice(n)
	} else {
		capture, err = OpenStream(id)
	}
	if err != nil {
		return nil, err
	}
	return capture, nil
}

// Capture reads frames from an OpenCV VideoCapture.
type Capture struct {
	mu      sync.Mutex
	name    string
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// OpenDevice opens a local capture device by index.
func OpenDevice(index int) (*Capture, error) {
	return openCapture(index, "device "+strconv.Itoa(index))
}

// OpenStream opens a stream URL or a video file.
func OpenStream(uri string) (*Capture, error) {
	return openCapture(uri, uri)
}

func openCapture(target interface{}, name string) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", name)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Errorf("failed to open %s", name)
	}
	return &Capture{name: name, capture: vc, mat: gocv.NewMat()}, nil
}

// Read grabs the next frame and converts it to an image.Image.
func (c *Capture) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, errors.Errorf("%s is closed", c.name)
	}
	if ok := c.capture.Read(&c.mat); !ok {
		return nil, errors.Wrapf(ErrEndOfStream, "cannot read %s", c.name)
	}
	if c.mat.Empty() {
		return nil, errors.Errorf("empty frame from %s", c.name)
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to convert frame from %s", c.name)
	}
	return img, nil
}

// Close releases the capture and its frame buffer.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	if cerr := c.mat.Close(); err == nil {
		err = cerr
	}
	return err
}

// String returns the source name.
func (c *Capture) String() string {
	return c.name
}
