package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-pantry/inventory"
)

// Command names understood by the session.
const (
	CommandConnect = "connect"
	CommandCapture = "capture"
	CommandClear   = "clear"
	CommandExport  = "export"
	CommandSet     = "set"
	CommandList    = "list"
)

// User-facing status messages.
const (
	MsgConnected     = "Camera connected successfully!"
	MsgConnectFailed = "Failed to connect to camera!"
	MsgNoCamera      = "No camera connected!"
	MsgCaptureFailed = "Failed to capture image!"
	MsgCleared       = "List cleared!"
	MsgCopied        = "List copied successfully!"
	MsgNothingToCopy = "No valid items to copy."
)

// Command is a named session action with its arguments.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a command line into a Command. Blank lines yield a
// Command with an empty name.
func ParseCommand(line string) Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}
}

// Status is the outcome of a command. Failed commands carry the error; the
// Message is always fit to show the user.
type Status struct {
	Command string          `json:"command"`
	Message string          `json:"message"`
	Err     error           `json:"-"`
	Rows    []inventory.Row `json:"rows,omitempty"`
	Text    string          `json:"text,omitempty"`
	Time    time.Time       `json:"time"`
}

// OK reports whether the command succeeded.
func (s Status) OK() bool {
	return s.Err == nil
}

type handlerFunc func(ctx context.Context, args []string) Status

func (c *Controller) commandTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		CommandConnect: c.connect,
		CommandCapture: c.capture,
		CommandClear:   c.clear,
		CommandExport:  c.export,
		CommandSet:     c.setQuantity,
		CommandList:    c.list,
	}
}

// connect replaces the active frame source. The previous source is released
// before the new one is opened, so a failed connect leaves the session
// disconnected.
func (c *Controller) connect(_ context.Context, args []string) Status {
	id := strings.TrimSpace(strings.Join(args, " "))

	if err := c.disconnect(); err != nil {
		c.logger.Warnw("failed to release previous frame source", "error", err)
	}

	source, err := c.opts.Open(id)
	if err != nil {
		return failed(MsgConnectFailed, &OpError{Op: CommandConnect, Kind: ErrConnection, Err: err})
	}

	c.source = source
	c.state = Connected
	c.ticker = time.NewTicker(c.opts.TickInterval)

	c.logger.Infow("frame source opened", "source", sourceName(id))
	return succeeded(MsgConnected)
}

// capture reads a fresh frame and adds its detections to the inventory.
func (c *Controller) capture(ctx context.Context, _ []string) Status {
	if c.state != Connected {
		return failed(MsgNoCamera, &OpError{Op: CommandCapture, Kind: ErrCapture, Err: ErrNotConnected})
	}

	frame, err := c.source.Read()
	if err != nil {
		return failed(MsgCaptureFailed, &OpError{Op: CommandCapture, Kind: ErrCapture, Err: err})
	}
	c.lastFrame = frame

	detections, err := c.infer(ctx, frame)
	if err != nil {
		return failed(MsgCaptureFailed, &OpError{Op: CommandCapture, Kind: ErrCapture, Err: err})
	}

	rows := c.view.Rebuild(c.acc.Accumulate(detections))
	c.render(rows)

	status := succeeded(fmt.Sprintf("Captured %d item(s).", len(detections)))
	status.Rows = rows
	return status
}

func (c *Controller) clear(_ context.Context, _ []string) Status {
	rows := c.view.Rebuild(c.acc.Reset())
	c.render(rows)

	status := succeeded(MsgCleared)
	status.Rows = rows
	return status
}

// export copies the display text to the clipboard. Clipboard and history
// failures are logged; the export still counts as done.
func (c *Controller) export(ctx context.Context, _ []string) Status {
	text := c.view.DisplayText()
	if text == "" {
		return failed(MsgNothingToCopy, ErrNothingToExport)
	}

	if c.opts.Clipboard != nil {
		if err := c.opts.Clipboard.Write(text); err != nil {
			c.logger.Warnw("clipboard write failed", "error", err)
		}
	}

	rows := c.view.Rows()
	if c.opts.History != nil {
		if err := c.opts.History.Record(ctx, text, rows); err != nil {
			c.logger.Warnw("failed to record export", "error", err)
		}
	}

	status := succeeded(MsgCopied)
	status.Text = text
	status.Rows = rows
	return status
}

// setQuantity edits one row. The last argument is the quantity; everything
// before it is the label, so labels may contain spaces.
func (c *Controller) setQuantity(_ context.Context, args []string) Status {
	if len(args) < 2 {
		err := errors.New("usage: set <label> <quantity>")
		return failed(err.Error(), err)
	}

	label := strings.Join(args[:len(args)-1], " ")
	text := args[len(args)-1]
	if err := c.view.SetQuantity(label, text); err != nil {
		return failed(err.Error(), err)
	}

	rows := c.view.Rows()
	c.render(rows)

	status := succeeded(fmt.Sprintf("%s: %d", label, inventory.ParseQuantity(text)))
	status.Rows = rows
	return status
}

func (c *Controller) list(_ context.Context, _ []string) Status {
	rows := c.view.Rows()
	status := succeeded(fmt.Sprintf("%d item(s) listed.", len(rows)))
	status.Rows = rows
	status.Text = c.view.DisplayText()
	return status
}

func succeeded(message string) Status {
	return Status{Message: message, Time: time.Now()}
}

func failed(message string, err error) Status {
	return Status{Message: message, Err: err, Time: time.Now()}
}

func sourceName(id string) string {
	if id == "" {
		return "default device"
	}
	return id
}
