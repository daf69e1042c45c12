package controller

import (
	"github.com/pkg/errors"
)

// Failure classes reported by session commands. Use errors.Is on a Status
// error to tell them apart.
var (
	// ErrConnection means the frame source could not be opened.
	ErrConnection = errors.New("camera connection failed")
	// ErrCapture means a capture produced no accumulation.
	ErrCapture = errors.New("capture failed")
	// ErrNotConnected is the cause of a capture attempted with no source.
	ErrNotConnected = errors.New("no camera connected")
	// ErrNothingToExport means no row has a positive quantity.
	ErrNothingToExport = errors.New("nothing to export")
	// ErrStopped is returned by Dispatch once Run has exited.
	ErrStopped = errors.New("controller stopped")
)

// OpError records which command failed, its failure class and the cause.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the failure class and the cause to errors.Is and
// errors.As.
func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
