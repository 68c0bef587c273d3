package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqlab/annopipe/internal/jobs"
	"github.com/seqlab/annopipe/internal/stage"
)

type fakeRecords struct {
	markRunningCalls []string
	markRunningErr   error
}

func (f *fakeRecords) MarkRunning(_ context.Context, jobID string) error {
	f.markRunningCalls = append(f.markRunningCalls, jobID)
	return f.markRunningErr
}

type fakeDownloader struct {
	err       error
	downloads []string
}

func (f *fakeDownloader) GetFile(_ context.Context, _, _, path string) error {
	if f.err != nil {
		return f.err
	}
	f.downloads = append(f.downloads, path)
	return os.WriteFile(path, []byte("##fileformat=VCFv4.2\n"), 0o644)
}

type fakeLauncher struct {
	err      error
	launched []string
}

func (f *fakeLauncher) Launch(inputPath string) error {
	if f.err != nil {
		return f.err
	}
	f.launched = append(f.launched, inputPath)
	return nil
}

const validRequest = `{"s3_inputs_bucket":"inputs","s3_key_input_file":"u1/j1~test.vcf",` +
	`"job_id":"j1","input_file_name":"test.vcf","user_id":"u1"}`

func TestHandleSuccess(t *testing.T) {
	root := t.TempDir()
	records := &fakeRecords{}
	downloader := &fakeDownloader{}
	launcher := &fakeLauncher{}

	s := NewStage(records, downloader, launcher, root, slog.Default())
	outcome := s.Handle(context.Background(), []byte(validRequest))

	assert.Equal(t, stage.Ack, outcome)

	wantPath := filepath.Join(root, "u1", "j1", "test.vcf")
	require.Len(t, launcher.launched, 1)
	assert.Equal(t, wantPath, launcher.launched[0])
	assert.FileExists(t, wantPath)
	assert.Equal(t, []string{"j1"}, records.markRunningCalls)
}

func TestHandleMalformedPayload(t *testing.T) {
	root := t.TempDir()
	records := &fakeRecords{}
	downloader := &fakeDownloader{}
	launcher := &fakeLauncher{}

	s := NewStage(records, downloader, launcher, root, slog.Default())

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{'job_id': 'j1'}`},
		{name: "missing fields", body: `{"job_id":"j1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := s.Handle(context.Background(), []byte(tt.body))

			assert.Equal(t, stage.Reject, outcome)
			assert.Empty(t, launcher.launched)
			assert.Empty(t, records.markRunningCalls)

			// No workspace was created
			entries, err := os.ReadDir(root)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestHandleDownloadFailure(t *testing.T) {
	root := t.TempDir()
	records := &fakeRecords{}
	downloader := &fakeDownloader{err: errors.New("connection refused")}
	launcher := &fakeLauncher{}

	s := NewStage(records, downloader, launcher, root, slog.Default())
	outcome := s.Handle(context.Background(), []byte(validRequest))

	assert.Equal(t, stage.RetryLater, outcome)
	assert.Empty(t, launcher.launched)
	assert.Empty(t, records.markRunningCalls)
}

func TestHandleLaunchFailure(t *testing.T) {
	root := t.TempDir()
	records := &fakeRecords{}
	downloader := &fakeDownloader{}
	launcher := &fakeLauncher{err: errors.New("no such binary")}

	s := NewStage(records, downloader, launcher, root, slog.Default())
	outcome := s.Handle(context.Background(), []byte(validRequest))

	// Message left for redelivery; the record stays PENDING
	assert.Equal(t, stage.RetryLater, outcome)
	assert.Empty(t, records.markRunningCalls)
}

func TestHandlePreconditionFailedIsBenign(t *testing.T) {
	root := t.TempDir()
	records := &fakeRecords{markRunningErr: jobs.ErrPreconditionFailed}
	downloader := &fakeDownloader{}
	launcher := &fakeLauncher{}

	s := NewStage(records, downloader, launcher, root, slog.Default())
	outcome := s.Handle(context.Background(), []byte(validRequest))

	// A lost RUNNING race does not fail the stage or roll back the worker
	assert.Equal(t, stage.Ack, outcome)
	assert.Len(t, launcher.launched, 1)
}

// casRecords transitions PENDING to RUNNING under a lock, the same
// compare-and-swap the SQL store performs with its conditional UPDATE.
type casRecords struct {
	mu        sync.Mutex
	status    map[string]jobs.Status
	successes int
	failures  int
}

func (f *casRecords) MarkRunning(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status[jobID] != jobs.StatusPending {
		f.failures++
		return jobs.ErrPreconditionFailed
	}
	f.status[jobID] = jobs.StatusRunning
	f.successes++
	return nil
}

func TestHandleConcurrentDuplicatesHaveOneWinner(t *testing.T) {
	root := t.TempDir()
	records := &casRecords{status: map[string]jobs.Status{"j1": jobs.StatusPending}}

	const attempts = 16
	outcomes := make([]stage.Outcome, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := NewStage(records, &fakeDownloader{}, &fakeLauncher{}, root, slog.Default())
			outcomes[i] = s.Handle(context.Background(), []byte(validRequest))
		}(i)
	}
	wg.Wait()

	// Exactly one attempt wins the RUNNING transition; the losers see the
	// precondition failure and still ack their delivery
	assert.Equal(t, 1, records.successes)
	assert.Equal(t, attempts-1, records.failures)
	assert.Equal(t, jobs.StatusRunning, records.status["j1"])
	for _, outcome := range outcomes {
		assert.Equal(t, stage.Ack, outcome)
	}
}

func TestHandleRedeliveryReusesWorkspace(t *testing.T) {
	root := t.TempDir()
	records := &fakeRecords{}
	downloader := &fakeDownloader{}
	launcher := &fakeLauncher{}

	s := NewStage(records, downloader, launcher, root, slog.Default())

	require.Equal(t, stage.Ack, s.Handle(context.Background(), []byte(validRequest)))
	require.Equal(t, stage.Ack, s.Handle(context.Background(), []byte(validRequest)))

	// Duplicate delivery tolerated the existing directory and relaunched
	assert.Len(t, launcher.launched, 2)
}

func TestWorkerLauncherStartsProcess(t *testing.T) {
	var captured []string
	original := command
	command = func(name string, args ...string) *exec.Cmd {
		captured = append([]string{name}, args...)
		cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
		return cmd
	}
	t.Cleanup(func() { command = original })

	l := NewWorkerLauncher("annotation-worker", slog.Default())
	err := l.Launch("/tmp/ws/u1/j1/test.vcf")

	require.NoError(t, err)
	assert.Equal(t, []string{"annotation-worker", "/tmp/ws/u1/j1/test.vcf"}, captured)
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	os.Exit(0)
}
