// Command heapipc runs the Controller, which spawns this same binary as the
// Renderer and shows the frames it renders into the shared heap.
//
// Usage:
//
//	heapipc [flags] [memfd|udmabuf] [coherent|incoherent]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/gg"

	"gosuda.org/heapipc"
	"gosuda.org/heapipc/backend/softgpu"
	"gosuda.org/heapipc/present"
)

func main() {
	cfg := heapipc.DefaultConfig()
	cfg.RegisterFlags(flag.CommandLine)
	var (
		frames   = flag.Int("frames", 0, "frames to render, 0 runs until interrupted")
		interval = flag.Duration("interval", heapipc.DefaultFrameInterval, "minimum time between frames")
		out      = flag.String("out", "", "directory to write frames into as BMP files")
		every    = flag.Int("every", 1, "write one of every N frames")
		verbose  = flag.Bool("v", false, "log every frame")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	heapipc.SetLogger(logger)
	gg.SetLogger(logger)

	args, renderer, err := heapipc.ParseArgs(flag.Args(), &cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	if renderer {
		heapipc.SetLogger(logger.With(slog.String("role", heapipc.RoleRenderer.String())))
		backend := softgpu.New(cfg.Width, cfg.Height)
		if err := heapipc.RunRenderer(cfg, args, backend); err != nil {
			fatal(err)
		}
		return
	}

	heapipc.SetLogger(logger.With(slog.String("role", heapipc.RoleController.String())))
	var presenter heapipc.Presenter = present.Discard{}
	if *out != "" {
		if presenter, err = present.NewBMPDir(*out, *every); err != nil {
			fatal(err)
		}
	}
	if err := runController(cfg, heapipc.RunOptions{
		Frames:    *frames,
		Interval:  *interval,
		Presenter: presenter,
	}); err != nil {
		fatal(err)
	}
}

func runController(cfg heapipc.Config, opts heapipc.RunOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := heapipc.StartController(cfg)
	if err != nil {
		return err
	}
	if err := c.Run(ctx, opts); err != nil {
		c.Close()
		return err
	}
	return c.Close()
}

// fatal reports err with its failure class and terminates the process
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "heapipc: fatal (%s): %v\n", heapipc.CodeOf(err), err)
	os.Exit(1)
}
