package heapipc

import (
	"log/slog"
	"os"
	"os/exec"

	"gosuda.org/heapipc/internal/shm"
)

// Descriptor numbers the Renderer inherits. exec.Cmd.ExtraFiles entry i
// becomes descriptor 3+i in the child, without close-on-exec.
const (
	childCtrlIn  = 3
	childCtrlOut = 4
	childHeap    = 5
)

// Child is the spawned Renderer process
type Child struct {
	cmd    *exec.Cmd
	waited bool
	err    error // result of the first Wait
}

// Pid returns the Renderer's process id
func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Wait blocks until the Renderer exits and reports how it ended.
// Later calls return the same result.
func (c *Child) Wait() error {
	if !c.waited {
		c.err = c.cmd.Wait()
		c.waited = true
	}
	return c.err
}

// Kill terminates the Renderer immediately
func (c *Child) Kill() error {
	return c.cmd.Process.Kill()
}

// spawnRenderer re-executes the current binary as the Renderer.
//
// Two pipes form the control link. The child receives its pipe ends and a
// duplicate of the heap descriptor, then re-enters the same entry point
// with the renderer token; the parent keeps only its own pipe ends.
func spawnRenderer(heap *shm.SharedMemory, cfg Config) (*Link, *Child, error) {
	exe := cfg.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, nil, failf(ErrResourceCreation, "locate executable: %w", err)
		}
	}

	downR, downW, err := os.Pipe() // Controller->Renderer
	if err != nil {
		return nil, nil, failf(ErrResourceCreation, "failed to create pipes: %w", err)
	}
	upR, upW, err := os.Pipe() // Renderer->Controller
	if err != nil {
		downR.Close()
		downW.Close()
		return nil, nil, failf(ErrResourceCreation, "failed to create pipes: %w", err)
	}

	args := RendererArgs{In: childCtrlIn, Out: childCtrlOut, Heap: childHeap, Mode: cfg.Import}
	argv := append(cfg.flagArgs(), args.Token(), cfg.Import.String())

	cmd := exec.Command(exe, argv...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{downR, upW, heap.File()}

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{downR, downW, upR, upW} {
			f.Close()
		}
		return nil, nil, failf(ErrResourceCreation, "failed to exec the renderer: %w", err)
	}

	// The child has its own copies now.
	downR.Close()
	upW.Close()

	Logger().Info("renderer spawned",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("token", args.Token()),
		slog.String("import", cfg.Import.String()))

	return NewLink(RoleController, upR, downW), &Child{cmd: cmd}, nil
}
