// Package clipboard writes exported inventory text to the system clipboard.
package clipboard

import (
	"github.com/atotto/clipboard"
	"github.com/pkg/errors"
)

// System is the desktop clipboard.
type System struct{}

// Available reports whether the platform has a usable clipboard tool.
func (System) Available() bool {
	return !clipboard.Unsupported
}

// Write replaces the clipboard contents with text.
func (s System) Write(text string) error {
	if !s.Available() {
		return errors.New("no clipboard utility available")
	}
	if err := clipboard.WriteAll(text); err != nil {
		return errors.Wrap(err, "failed to write clipboard")
	}
	return nil
}
