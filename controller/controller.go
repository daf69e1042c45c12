// Package controller - This file contains the session controller that owns the
// frame source, the annotation loop and the inventory.
package controller

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-pantry/detector"
	"github.com/nvr-ai/go-pantry/inventory"
)

// DefaultTickInterval is the annotation cadence, 60 Hz.
const DefaultTickInterval = time.Second / 60

// State is the connection state of a session.
type State int

const (
	// Disconnected means no frame source is open.
	Disconnected State = iota
	// Connected means a frame source is open and ticks are scheduled.
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// FrameSource yields frames from a camera, stream, file or directory.
type FrameSource interface {
	Read() (image.Image, error)
	Close() error
}

// Opener opens the frame source named by id. An empty id selects the default
// local device.
type Opener func(id string) (FrameSource, error)

// Detector turns a frame into filtered detections.
type Detector interface {
	Infer(ctx context.Context, frame image.Image) ([]detector.Detection, error)
}

// Annotator draws detections onto a copy of a frame.
type Annotator interface {
	Annotate(frame image.Image, detections []detector.Detection) *image.RGBA
}

// Display shows annotated frames.
type Display interface {
	Show(img image.Image) error
}

// Clipboard receives exported inventory text.
type Clipboard interface {
	Write(text string) error
}

// Renderer receives the full row set every time it is rebuilt or edited.
type Renderer interface {
	Render(rows []inventory.Row)
}

// Notifier receives the status of every handled command.
type Notifier interface {
	Notify(status Status)
}

// History archives successful exports.
type History interface {
	Record(ctx context.Context, text string, rows []inventory.Row) error
}

// Profiler times operations and counts events.
type Profiler interface {
	StartOperation(name string) func()
	RecordEvent(name string)
	SetInventorySize(labels, items int)
}

// Options wires a Controller to its collaborators. Open, Detector and
// Annotator are required; the rest are optional.
type Options struct {
	Open      Opener
	Detector  Detector
	Annotator Annotator
	Display   Display
	Clipboard Clipboard
	Renderer  Renderer
	Notifier  Notifier
	History   History
	Profiler  Profiler

	// TickInterval defaults to DefaultTickInterval.
	TickInterval time.Duration
	Logger       *zap.SugaredLogger
}

type request struct {
	ctx   context.Context
	cmd   Command
	reply chan Status
}

// Controller is the session: it owns the frame source, the inventory and the
// periodic annotation tick.
//
// All session state is confined to the goroutine running Run. Dispatch and
// Post hand commands to it. Handle and Tick operate directly on the state and
// must only be used when Run is not running.
type Controller struct {
	opts     Options
	logger   *zap.SugaredLogger
	handlers map[string]handlerFunc

	state     State
	source    FrameSource
	ticker    *time.Ticker
	lastFrame image.Image

	acc  *inventory.Accumulator
	view *inventory.ViewModel

	requests chan request
	done     chan struct{}
}

// New creates a disconnected session with an empty inventory.
//
// Arguments:
//   - opts: The collaborators.
//
// Returns:
//   - *Controller: The session.
//   - error: An error if a required collaborator is missing.
func New(opts Options) (*Controller, error) {
	if opts.Open == nil {
		return nil, errors.New("controller requires a frame source opener")
	}
	if opts.Detector == nil {
		return nil, errors.New("controller requires a detector")
	}
	if opts.Annotator == nil {
		return nil, errors.New("controller requires an annotator")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Profiler == nil {
		opts.Profiler = nopProfiler{}
	}

	c := &Controller{
		opts:     opts,
		logger:   opts.Logger,
		acc:      inventory.NewAccumulator(),
		view:     inventory.NewViewModel(),
		requests: make(chan request, 16),
		done:     make(chan struct{}),
	}
	c.handlers = c.commandTable()
	return c, nil
}

// Run owns the session until ctx is cancelled. It executes queued commands
// and, while connected, annotation ticks, one at a time. Ticks that fall
// behind are dropped. The frame source is closed on return.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer func() {
		if err := c.disconnect(); err != nil {
			c.logger.Warnw("failed to release frame source", "error", err)
		}
	}()

	for {
		var tick <-chan time.Time
		if c.ticker != nil {
			tick = c.ticker.C
		}

		select {
		case <-ctx.Done():
			return nil
		case req := <-c.requests:
			status := c.Handle(req.ctx, req.cmd)
			if req.reply != nil {
				req.reply <- status
			}
		case <-tick:
			c.Tick(ctx)
		}
	}
}

// Dispatch queues cmd for Run and waits for its status.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) Status {
	req := request{ctx: ctx, cmd: cmd, reply: make(chan Status, 1)}

	select {
	case c.requests <- req:
	case <-ctx.Done():
		return Status{Command: cmd.Name, Message: ctx.Err().Error(), Err: ctx.Err()}
	case <-c.done:
		return Status{Command: cmd.Name, Message: ErrStopped.Error(), Err: ErrStopped}
	}

	select {
	case status := <-req.reply:
		return status
	case <-ctx.Done():
		return Status{Command: cmd.Name, Message: ctx.Err().Error(), Err: ctx.Err()}
	case <-c.done:
		return Status{Command: cmd.Name, Message: ErrStopped.Error(), Err: ErrStopped}
	}
}

// Post queues cmd without waiting. The status still reaches the Notifier.
// It reports false if the queue is full or Run has exited.
func (c *Controller) Post(cmd Command) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.requests <- request{ctx: context.Background(), cmd: cmd}:
		return true
	default:
		return false
	}
}

// Handle executes one command synchronously.
func (c *Controller) Handle(ctx context.Context, cmd Command) Status {
	handler, ok := c.handlers[cmd.Name]
	if !ok {
		err := errors.Errorf("unknown command %q", cmd.Name)
		return c.report(Status{Command: cmd.Name, Message: err.Error(), Err: err})
	}

	status := handler(ctx, cmd.Args)
	status.Command = cmd.Name
	return c.report(status)
}

// Tick reads one frame, runs detection and shows the annotated result. It
// never touches the inventory. Read failures skip the frame; inference
// failures show the frame without overlays.
func (c *Controller) Tick(ctx context.Context) {
	if c.state != Connected {
		return
	}
	defer c.opts.Profiler.StartOperation("tick")()

	frame, err := c.source.Read()
	if err != nil {
		c.logger.Debugw("tick read failed", "error", err)
		c.opts.Profiler.RecordEvent("tick_read_failed")
		return
	}
	c.lastFrame = frame

	detections, err := c.infer(ctx, frame)
	if err != nil {
		c.logger.Warnw("tick inference failed", "error", err)
		c.opts.Profiler.RecordEvent("tick_inference_failed")
		detections = nil
	}

	done := c.opts.Profiler.StartOperation("annotate")
	annotated := c.opts.Annotator.Annotate(frame, detections)
	done()

	if c.opts.Display != nil {
		if err := c.opts.Display.Show(annotated); err != nil {
			c.logger.Warnw("failed to show frame", "error", err)
		}
	}
}

// State returns the connection state.
func (c *Controller) State() State {
	return c.state
}

// Rows returns the current inventory rows.
func (c *Controller) Rows() []inventory.Row {
	return c.view.Rows()
}

// Entries returns the accumulated counts.
func (c *Controller) Entries() []inventory.Entry {
	return c.acc.Entries()
}

// LastFrame returns the most recent frame read, or nil.
func (c *Controller) LastFrame() image.Image {
	return c.lastFrame
}

// Close releases the frame source. Use it only when Run is not running.
func (c *Controller) Close() error {
	return c.disconnect()
}

func (c *Controller) infer(ctx context.Context, frame image.Image) ([]detector.Detection, error) {
	defer c.opts.Profiler.StartOperation("inference")()
	return c.opts.Detector.Infer(ctx, frame)
}

// disconnect stops the ticker before closing the source so no tick can read
// from a closed source.
func (c *Controller) disconnect() error {
	var err error
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.source != nil {
		err = multierr.Append(err, c.source.Close())
		c.source = nil
	}
	c.state = Disconnected
	return err
}

func (c *Controller) report(status Status) Status {
	if status.Err != nil {
		c.logger.Warnw(status.Message, "command", status.Command, "error", status.Err)
		c.opts.Profiler.RecordEvent(status.Command + "_failed")
	} else {
		c.logger.Infow(status.Message, "command", status.Command)
		c.opts.Profiler.RecordEvent(status.Command)
	}
	if c.opts.Notifier != nil {
		c.opts.Notifier.Notify(status)
	}
	return status
}

func (c *Controller) render(rows []inventory.Row) {
	items := 0
	for _, e := range c.acc.Entries() {
		items += e.Count
	}
	c.opts.Profiler.SetInventorySize(c.acc.Len(), items)

	if c.opts.Renderer != nil {
		c.opts.Renderer.Render(rows)
	}
}

type nopProfiler struct{}

func (nopProfiler) StartOperation(string) func() { return func() {} }
func (nopProfiler) RecordEvent(string)           {}
func (nopProfiler) SetInventorySize(int, int)    {}
