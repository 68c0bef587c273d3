// Package annotate invokes the external annotation tool. The tool is opaque:
// it takes one input file path and writes two sibling outputs, the annotated
// result and a count log, named by fixed suffix rules.
package annotate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// ResultFileName derives the annotated result file name from the input file
// name: "test.vcf" becomes "test.annot.vcf".
func ResultFileName(inputFile string) string {
	if strings.HasSuffix(inputFile, ".vcf") {
		return strings.TrimSuffix(inputFile, ".vcf") + ".annot.vcf"
	}
	return inputFile + ".annot.vcf"
}

// LogFileName derives the count log file name from the input file name:
// "test.vcf" becomes "test.vcf.count.log".
func LogFileName(inputFile string) string {
	return inputFile + ".count.log"
}

// ResultPath returns the expected path of the annotated result next to input.
func ResultPath(inputPath string) string {
	return filepath.Join(filepath.Dir(inputPath), ResultFileName(filepath.Base(inputPath)))
}

// LogPath returns the expected path of the count log next to input.
func LogPath(inputPath string) string {
	return filepath.Join(filepath.Dir(inputPath), LogFileName(filepath.Base(inputPath)))
}

// Runner runs the annotation tool as a subprocess.
type Runner struct {
	tool   string
	logger *slog.Logger
}

// NewRunner creates a runner for the given tool executable.
func NewRunner(tool string, logger *slog.Logger) *Runner {
	return &Runner{
		tool:   tool,
		logger: logger,
	}
}

// Run executes the tool on inputPath and verifies both expected outputs
// exist afterwards.
func (r *Runner) Run(ctx context.Context, inputPath string) error {
	start := time.Now()

	var stderr bytes.Buffer
	cmd := commandContext(ctx, r.tool, inputPath)
	cmd.Stderr = &stderr

	r.logger.Info("Running annotation tool",
		slog.String("tool", r.tool),
		slog.String("input_path", inputPath),
	)

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("annotation tool failed: %w: %s", err, msg)
		}
		return fmt.Errorf("annotation tool failed: %w", err)
	}

	for _, path := range []string{ResultPath(inputPath), LogPath(inputPath)} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("annotation tool produced no output at %q: %w", path, err)
		}
	}

	r.logger.Info("Annotation finished",
		slog.String("input_path", inputPath),
		slog.Duration("runtime", time.Since(start)),
	)

	return nil
}
