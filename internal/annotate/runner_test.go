package annotate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "vcf input", input: "test.vcf", want: "test.annot.vcf"},
		{name: "nested dots", input: "sample.v2.vcf", want: "sample.v2.annot.vcf"},
		{name: "no vcf suffix", input: "data.txt", want: "data.txt.annot.vcf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResultFileName(tt.input))
		})
	}
}

func TestLogFileName(t *testing.T) {
	assert.Equal(t, "test.vcf.count.log", LogFileName("test.vcf"))
}

func TestOutputPaths(t *testing.T) {
	input := filepath.Join("ws", "u1", "j1", "test.vcf")
	assert.Equal(t, filepath.Join("ws", "u1", "j1", "test.annot.vcf"), ResultPath(input))
	assert.Equal(t, filepath.Join("ws", "u1", "j1", "test.vcf.count.log"), LogPath(input))
}

func setHelperCommand(t *testing.T, mode string) *[]string {
	t.Helper()

	var captured []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string{name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("ANNOT_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() { commandContext = original })

	return &captured
}

func TestRunnerSuccess(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "test.vcf")
	require.NoError(t, os.WriteFile(inputPath, []byte("##fileformat=VCFv4.2\n"), 0o644))

	// The helper does not write outputs; create them as the tool would
	require.NoError(t, os.WriteFile(ResultPath(inputPath), []byte("annotated"), 0o644))
	require.NoError(t, os.WriteFile(LogPath(inputPath), []byte("counts"), 0o644))

	captured := setHelperCommand(t, "success")

	r := NewRunner("anntool", slog.Default())
	err := r.Run(context.Background(), inputPath)

	require.NoError(t, err)
	assert.Equal(t, []string{"anntool", inputPath}, *captured)
}

func TestRunnerToolFailure(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "test.vcf")
	require.NoError(t, os.WriteFile(inputPath, []byte("##fileformat=VCFv4.2\n"), 0o644))

	setHelperCommand(t, "fail")

	r := NewRunner("anntool", slog.Default())
	err := r.Run(context.Background(), inputPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "annotation tool failed")
}

func TestRunnerMissingOutputs(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "test.vcf")
	require.NoError(t, os.WriteFile(inputPath, []byte("##fileformat=VCFv4.2\n"), 0o644))

	setHelperCommand(t, "success")

	r := NewRunner("anntool", slog.Default())
	err := r.Run(context.Background(), inputPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced no output")
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("ANNOT_HELPER_MODE") == "fail" {
		fmt.Fprintln(os.Stderr, "invalid VCF header")
		os.Exit(1)
	}
	os.Exit(0)
}
