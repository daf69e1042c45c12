package main

import (
	"context"
	"os"
	"runtime"

	"github.com/charmbracelet/fang"

	"github.com/nvr-ai/go-pantry/cmd"
)

const version = "0.1.0"

func init() {
	// OpenCV windows must be driven from the main OS thread.
	runtime.LockOSThread()
}

func main() {
	root := cmd.NewRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
