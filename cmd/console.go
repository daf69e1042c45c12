package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/nvr-ai/go-pantry/controller"
	"github.com/nvr-ai/go-pantry/inventory"
)

const sessionHelp = `commands:
  connect [source]     open a camera index, stream URL, video file or frame directory
  capture              detect items in the current frame and add them to the list
  clear                empty the list
  export               copy the list to the clipboard
  set <label> <qty>    edit the quantity of a row
  list                 show the list
  quit                 leave`

// console prints statuses and inventory tables to a terminal.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

// Notify prints the status of a handled command.
func (c *console) Notify(status controller.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status.OK() {
		fmt.Fprintln(c.out, status.Message)
		return
	}
	fmt.Fprintf(c.out, "%s (%v)\n", status.Message, status.Err)
}

// Render prints the inventory table.
func (c *console) Render(rows []inventory.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	printRows(c.out, rows)
}

func (c *console) print(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, text)
}

func printRows(out io.Writer, rows []inventory.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "(empty)")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tDETECTED\tQUANTITY")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", row.Label, row.Detected, row.Quantity)
	}
	tw.Flush()
}

// fanout forwards rows and statuses to several sinks.
type fanout struct {
	renderers []controller.Renderer
	notifiers []controller.Notifier
}

func (f *fanout) Render(rows []inventory.Row) {
	for _, r := range f.renderers {
		r.Render(rows)
	}
}

func (f *fanout) Notify(status controller.Status) {
	for _, n := range f.notifiers {
		n.Notify(status)
	}
}

type dispatcher interface {
	Dispatch(ctx context.Context, cmd controller.Command) controller.Status
}

// commandLoop reads session commands line by line until EOF or quit. It
// returns true when the user asked to quit.
func commandLoop(ctx context.Context, in io.Reader, con *console, d dispatcher) (bool, error) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return false, nil
		}

		cmd := controller.ParseCommand(scanner.Text())
		switch cmd.Name {
		case "":
			continue
		case "quit", "exit":
			return true, nil
		case "help", "?":
			con.print(sessionHelp)
			continue
		}

		status := d.Dispatch(ctx, cmd)
		if !status.OK() {
			continue
		}
		switch cmd.Name {
		case controller.CommandList:
			con.Render(status.Rows)
		case controller.CommandExport:
			con.print(strings.TrimRight(status.Text, "\n"))
		}
	}
	return false, scanner.Err()
}
