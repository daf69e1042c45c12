package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-pantry/annotator"
	"github.com/nvr-ai/go-pantry/camera"
	"github.com/nvr-ai/go-pantry/clipboard"
	"github.com/nvr-ai/go-pantry/controller"
	"github.com/nvr-ai/go-pantry/display"
	"github.com/nvr-ai/go-pantry/history"
	"github.com/nvr-ai/go-pantry/logging"
	"github.com/nvr-ai/go-pantry/profiler"
	"github.com/nvr-ai/go-pantry/web"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		source   string
		listen   string
		headless bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive inventory session",
		Long: `Loads the detection model, connects to the configured camera and reads
session commands from stdin. With a display window, the keys c (capture),
x (clear), e (export) and q or Esc (quit) work as well.

Failing to load the model is fatal. Every other failure is reported and the
session keeps running.`,
		Example: `  # Default webcam, window and stdin commands
  pantry run

  # Replay a directory of frames without a window and serve the live feed
  pantry run --source ./frames --headless --listen :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("source") {
				cfg.Camera.Source = source
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if headless {
				cfg.Display = false
			}

			logger, closeLog, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			det, cleanup, err := loadDetector(cfg, logger)
			if err != nil {
				logger.Errorw("failed to load model", "path", cfg.Model.Path, "error", err)
				return err
			}
			defer cleanup()

			ann, err := annotator.New(annotator.DefaultFontSize)
			if err != nil {
				return err
			}

			prof := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{Logger: logger})
			prof.Start()
			defer prof.Stop()

			con := newConsole(cmd.OutOrStdout())
			sinks := &fanout{
				renderers: []controller.Renderer{con},
				notifiers: []controller.Notifier{con},
			}

			var (
				hist   controller.History
				reader web.HistoryReader
			)
			if cfg.HistoryDB != "" {
				store, err := history.Open(cfg.HistoryDB)
				if err != nil {
					logger.Warnw("export history disabled", "path", cfg.HistoryDB, "error", err)
				} else {
					defer store.Close()
					hist, reader = store, store
				}
			}

			var hub *web.Hub
			if cfg.Listen != "" {
				hub = web.NewHub(logger)
				sinks.renderers = append(sinks.renderers, hub)
				sinks.notifiers = append(sinks.notifiers, hub)
			}

			var (
				window *display.Window
				disp   controller.Display
			)
			if cfg.Display {
				window = display.New("Pantry Inventory")
				defer window.Close()
				disp = window
			}

			clip := clipboard.System{}
			if !clip.Available() {
				logger.Warnw("no clipboard utility found, exports are printed only")
			}

			ctrl, err := controller.New(controller.Options{
				Open:         openSource,
				Detector:     det,
				Annotator:    ann,
				Display:      disp,
				Clipboard:    clip,
				Renderer:     sinks,
				Notifier:     sinks,
				History:      hist,
				Profiler:     prof,
				TickInterval: cfg.TickInterval(),
				Logger:       logger,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if hub != nil {
				go hub.Run(ctx)
				server := web.NewServer(web.ServerOptions{
					Addr:    cfg.Listen,
					Hub:     hub,
					Metrics: prof.Handler(),
					History: reader,
					Logger:  logger,
				})
				go serve(ctx, server, logger)
			}

			if window != nil {
				go handleKeys(ctx, window, ctrl, cancel, logger)
			}

			go func() {
				var connectArgs []string
				if cfg.Camera.Source != "" {
					connectArgs = []string{cfg.Camera.Source}
				}
				ctrl.Dispatch(ctx, controller.Command{Name: controller.CommandConnect, Args: connectArgs})

				quit, err := commandLoop(ctx, cmd.InOrStdin(), con, ctrl)
				if err != nil {
					logger.Warnw("stopped reading commands", "error", err)
				}
				// Without a window, stdin is the only way to drive the session.
				if quit || window == nil {
					cancel()
				}
			}()

			// The window belongs to this goroutine's OS thread, so the
			// controller loop runs here.
			return ctrl.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Camera source: device index, stream URL, video file or frame directory")
	cmd.Flags().StringVar(&listen, "listen", "", "Serve the live feed, metrics and history on this address")
	cmd.Flags().BoolVar(&headless, "headless", false, "Do not open a display window")

	return cmd
}

func openSource(id string) (controller.FrameSource, error) {
	src, err := camera.Open(id)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func handleKeys(ctx context.Context, window *display.Window, ctrl *controller.Controller, quit func(), logger *zap.SugaredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case key := <-window.Keys():
			action, ok := display.ActionForKey(key)
			if !ok {
				continue
			}
			if action == display.ActionQuit {
				quit()
				return
			}
			if !ctrl.Post(controller.Command{Name: action}) {
				logger.Warnw("dropped key command, session is busy", "action", action)
			}
		}
	}
}

func serve(ctx context.Context, server *http.Server, logger *zap.SugaredLogger) {
	serverErr := make(chan error, 1)
	go func() {
		logger.Infow("live feed available", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("feed server shutdown failed", "error", err)
		}
	case err := <-serverErr:
		logger.Errorw("feed server stopped", "error", err)
	}
}
