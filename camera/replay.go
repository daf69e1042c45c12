package camera

import (
	"image"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-pantry/util"
)

// Replay serves the image files of a directory as frames.
type Replay struct {
	mu     sync.Mutex
	dir    string
	files  []util.ImageFile
	next   int
	loop   bool
	closed bool
}

// OpenDirectory loads every image file in dir. With loop set, Read wraps
// around to the first frame instead of reporting ErrEndOfStream.
func OpenDirectory(dir string, loop bool) (*Replay, error) {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no image files in %s", dir)
	}
	return &Replay{dir: dir, files: files, loop: loop}, nil
}

// Read decodes the next frame.
func (r *Replay) Read() (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.Errorf("replay of %s is closed", r.dir)
	}
	if r.next >= len(r.files) {
		if !r.loop {
			return nil, ErrEndOfStream
		}
		r.next = 0
	}

	file := r.files[r.next]
	r.next++
	return file.Decode()
}

// Len returns the number of frames.
func (r *Replay) Len() int {
	return len(r.files)
}

// Close drops the loaded frames.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.files = nil
	return nil
}
