// Package dispatch consumes job-request messages, stages the input file in a
// local workspace, and launches the annotation worker process.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/seqlab/annopipe/internal/jobs"
	"github.com/seqlab/annopipe/internal/messages"
	"github.com/seqlab/annopipe/internal/stage"
)

// RecordStore is the job record operation dispatch needs.
type RecordStore interface {
	MarkRunning(ctx context.Context, jobID string) error
}

// Downloader stages an object into the local workspace.
type Downloader interface {
	GetFile(ctx context.Context, bucket, key, path string) error
}

// Launcher starts the annotation worker for a staged input file.
type Launcher interface {
	Launch(inputPath string) error
}

// Stage is the dispatch consumer.
type Stage struct {
	records       RecordStore
	objects       Downloader
	launcher      Launcher
	workspaceRoot string
	logger        *slog.Logger
}

// NewStage creates a dispatch stage.
func NewStage(records RecordStore, objects Downloader, launcher Launcher, workspaceRoot string, logger *slog.Logger) *Stage {
	return &Stage{
		records:       records,
		objects:       objects,
		launcher:      launcher,
		workspaceRoot: workspaceRoot,
		logger:        logger,
	}
}

// WorkspaceDir returns the per-job workspace directory.
func WorkspaceDir(root, userID, jobID string) string {
	return filepath.Join(root, userID, jobID)
}

// Handle processes one job-request message.
//
// The message is acked only after the worker process has started, so a crash
// before launch causes redelivery and retry. A crash after launch but before
// ack can launch the worker twice for one job; the conditional RUNNING write
// is the only guard, and only one attempt wins the status transition.
func (s *Stage) Handle(ctx context.Context, body []byte) stage.Outcome {
	req, err := messages.DecodeJobRequest(body)
	if err != nil {
		s.logger.Error("Malformed job request",
			slog.String("body", string(body)),
			slog.Any("error", err),
		)
		return stage.Reject
	}

	logger := s.logger.With(
		slog.String("job_id", req.JobID),
		slog.String("user_id", req.UserID),
	)

	// MkdirAll tolerates an existing directory, so a redelivered request
	// reuses the workspace instead of failing.
	dir := WorkspaceDir(s.workspaceRoot, req.UserID, req.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("Failed to create job workspace",
			slog.String("dir", dir),
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	inputPath := filepath.Join(dir, req.InputFileName)
	if err := s.objects.GetFile(ctx, req.S3InputsBucket, req.S3KeyInputFile, inputPath); err != nil {
		logger.Error("Failed to download input file",
			slog.String("bucket", req.S3InputsBucket),
			slog.String("key", req.S3KeyInputFile),
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	if err := s.launcher.Launch(inputPath); err != nil {
		logger.Error("Failed to launch annotation worker",
			slog.String("input_path", inputPath),
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	logger.Info("Annotation worker launched",
		slog.String("input_path", inputPath),
	)

	if err := s.records.MarkRunning(ctx, req.JobID); err != nil {
		if errors.Is(err, jobs.ErrPreconditionFailed) {
			// A prior duplicate dispatch already advanced the job.
			logger.Warn("Job already advanced past PENDING")
		} else {
			logger.Error("Failed to mark job running",
				slog.Any("error", err),
			)
		}
	}

	return stage.Ack
}
