package dispatch

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

var command = exec.Command

// WorkerLauncher starts the annotation worker binary as an independent
// process. The worker is fire-and-forget: once started it runs to completion
// or crashes, and dispatch never kills or times it out.
type WorkerLauncher struct {
	bin    string
	logger *slog.Logger
}

// NewWorkerLauncher creates a launcher for the given worker binary.
func NewWorkerLauncher(bin string, logger *slog.Logger) *WorkerLauncher {
	return &WorkerLauncher{
		bin:    bin,
		logger: logger,
	}
}

// Launch starts the worker with the staged input path as its only argument.
func (l *WorkerLauncher) Launch(inputPath string) error {
	cmd := command(l.bin, inputPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker %q: %w", l.bin, err)
	}

	l.logger.Debug("Worker process started",
		slog.String("bin", l.bin),
		slog.Int("pid", cmd.Process.Pid),
	)

	// Reap the child when it exits; its outcome is recorded by the worker
	// itself through the job record.
	go func() {
		_ = cmd.Wait()
	}()

	return nil
}
