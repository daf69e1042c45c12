// Package display shows annotated frames in an OpenCV window and turns key
// presses into session actions.
package display

import (
	"image"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Key actions.
const (
	ActionCapture = "capture"
	ActionClear   = "clear"
	ActionExport  = "export"
	ActionQuit    = "quit"
)

const keyEscape = 27

// ActionForKey maps a key code from WaitKey to an action name.
func ActionForKey(key int) (string, bool) {
	switch key {
	case 'c', 'C', ' ':
		return ActionCapture, true
	case 'x', 'X':
		return ActionClear, true
	case 'e', 'E':
		return ActionExport, true
	case 'q', 'Q', keyEscape:
		return ActionQuit, true
	}
	return "", false
}

// Window is an OpenCV highgui window.
//
// OpenCV expects window calls to come from one OS thread, so Show must always
// be called from the same goroutine, locked with runtime.LockOSThread.
type Window struct {
	mu     sync.Mutex
	window *gocv.Window
	keys   chan int
}

// New opens a window with the given title.
func New(title string) *Window {
	return &Window{
		window: gocv.NewWindow(title),
		keys:   make(chan int, 8),
	}
}

// Show displays img and polls the keyboard once. Key presses are delivered on
// Keys; they are dropped when nobody is reading.
func (w *Window) Show(img image.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.window == nil {
		return errors.New("window is closed")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrap(err, "failed to convert frame for display")
	}
	defer mat.Close()

	w.window.IMShow(mat)
	if key := w.window.WaitKey(1); key >= 0 {
		select {
		case w.keys <- key:
		default:
		}
	}
	return nil
}

// Keys delivers key codes pressed while the window had focus.
func (w *Window) Keys() <-chan int {
	return w.keys
}

// Close destroys the window.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.window == nil {
		return nil
	}
	err := w.window.Close()
	w.window = nil
	return err
}
