// Package completion is the worker epilogue: after the annotation tool
// finishes, it uploads the artifacts, marks the job COMPLETED, cleans the
// workspace, and fans out completion and archival notifications.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/seqlab/annopipe/internal/annotate"
	"github.com/seqlab/annopipe/internal/jobs"
	"github.com/seqlab/annopipe/internal/messages"
)

// RecordStore is the job record surface the epilogue needs.
type RecordStore interface {
	Get(ctx context.Context, jobID string) (*jobs.Record, error)
	MarkCompleted(ctx context.Context, jobID, resultsBucket, resultKey, logKey string, completeTime int64) error
}

// Uploader stores a local file in hot object storage.
type Uploader interface {
	PutFile(ctx context.Context, bucket, key, path string) error
}

// Publisher fans out notifications.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Config holds completion stage settings
type Config struct {
	ResultsBucket      string
	KeyPrefix          string
	CompleteRoutingKey string
	ArchiveRoutingKey  string
}

// Stage runs the epilogue steps.
type Stage struct {
	records   RecordStore
	objects   Uploader
	publisher Publisher
	config    *Config
	logger    *slog.Logger

	now func() time.Time
}

// NewStage creates a completion stage.
func NewStage(records RecordStore, objects Uploader, publisher Publisher, config *Config, logger *slog.Logger) *Stage {
	return &Stage{
		records:   records,
		objects:   objects,
		publisher: publisher,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// SplitWorkspacePath recovers (user_id, job_id, file) from a staged input
// path of the form <root>/<user_id>/<job_id>/<file>.
func SplitWorkspacePath(inputPath string) (userID, jobID, file string, err error) {
	file = filepath.Base(inputPath)
	jobDir := filepath.Dir(inputPath)
	jobID = filepath.Base(jobDir)
	userID = filepath.Base(filepath.Dir(jobDir))

	if file == "." || file == string(filepath.Separator) || jobID == "." || userID == "." || userID == string(filepath.Separator) {
		return "", "", "", fmt.Errorf("input path %q is not a job workspace path", inputPath)
	}

	return userID, jobID, file, nil
}

// ResultKey builds the hot-storage key for a job artifact.
func ResultKey(prefix, userID, jobID, file string) string {
	return prefix + userID + "/" + jobID + "~" + file
}

// Run executes the epilogue for the job whose input lives at inputPath.
// Every step is attempted regardless of earlier failures; the returned
// report records each outcome.
func (s *Stage) Run(ctx context.Context, inputPath string) *Report {
	userID, jobID, file, err := SplitWorkspacePath(inputPath)
	if err != nil {
		report := &Report{}
		report.add("identify_job", err)
		return report
	}

	report := &Report{JobID: jobID}
	logger := s.logger.With(
		slog.String("job_id", jobID),
		slog.String("user_id", userID),
	)

	fileAnnot := annotate.ResultFileName(file)
	fileLog := annotate.LogFileName(file)
	keyAnnot := ResultKey(s.config.KeyPrefix, userID, jobID, fileAnnot)
	keyLog := ResultKey(s.config.KeyPrefix, userID, jobID, fileLog)

	// 1. Upload the annotated result
	err = s.objects.PutFile(ctx, s.config.ResultsBucket, keyAnnot, annotate.ResultPath(inputPath))
	s.record(logger, report, "upload_result", err)

	// 2. Upload the count log
	err = s.objects.PutFile(ctx, s.config.ResultsBucket, keyLog, annotate.LogPath(inputPath))
	s.record(logger, report, "upload_log", err)

	// 3. Mark the job COMPLETED with its result metadata
	completeTime := s.now().Unix()
	err = s.records.MarkCompleted(ctx, jobID, s.config.ResultsBucket, keyAnnot, keyLog, completeTime)
	s.record(logger, report, "update_record", err)

	// 4. Delete the workspace unconditionally, even after upload failures
	err = os.RemoveAll(filepath.Dir(inputPath))
	s.record(logger, report, "clean_workspace", err)

	// 5. Publish the completion notification
	record, err := s.records.Get(ctx, jobID)
	if err == nil {
		notification := messages.CompletionNotification{
			JobID:  jobID,
			UserID: userID,
			File:   file,
			Email:  record.Email,
		}
		err = s.publish(ctx, s.config.CompleteRoutingKey, &notification)
	}
	s.record(logger, report, "notify_complete", err)

	// 6. Free-tier results additionally get an archival request. Without the
	// record the role is unknown, so the step fails instead of being silently
	// skipped; only a known premium role omits it.
	if record == nil {
		s.record(logger, report, "notify_archive",
			fmt.Errorf("user role unknown, archival request not published"))
	} else if record.UserRole == jobs.RoleFreeUser {
		request := messages.ArchivalRequest{
			JobID:           jobID,
			UserID:          userID,
			UserRole:        record.UserRole,
			CompleteTime:    completeTime,
			FileAnnot:       fileAnnot,
			S3ResultsBucket: s.config.ResultsBucket,
			KeyAnnot:        keyAnnot,
		}
		err = s.publish(ctx, s.config.ArchiveRoutingKey, &request)
		s.record(logger, report, "notify_archive", err)
	}

	if report.OK() {
		logger.Info("Job epilogue finished")
	}

	return report
}

func (s *Stage) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := messages.Encode(payload)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, routingKey, body)
}

func (s *Stage) record(logger *slog.Logger, report *Report, name string, err error) {
	report.add(name, err)
	if err != nil {
		logger.Error("Epilogue step failed",
			slog.String("step", name),
			slog.Any("error", err),
		)
	}
}
