// Package archive moves free-tier results from hot object storage into the
// cold-storage vault after a cooling-off window has elapsed.
package archive

import (
	"context"
	"log/slog"
	"time"

	"github.com/seqlab/annopipe/internal/coldstore"
	"github.com/seqlab/annopipe/internal/jobs"
	"github.com/seqlab/annopipe/internal/messages"
	"github.com/seqlab/annopipe/internal/stage"
)

// DefaultCoolingOff is the window during which a freshly completed result
// stays in hot storage for free download.
const DefaultCoolingOff = 5 * time.Minute

// RecordStore is the job record surface the archive stage needs.
type RecordStore interface {
	Get(ctx context.Context, jobID string) (*jobs.Record, error)
	SetArchiveID(ctx context.Context, jobID, archiveID string) error
}

// ObjectStore reads and removes hot result objects.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// Stage is the archival consumer.
type Stage struct {
	records    RecordStore
	objects    ObjectStore
	vault      coldstore.Vault
	coolingOff time.Duration
	logger     *slog.Logger

	now func() time.Time
}

// NewStage creates an archive stage. coolingOff <= 0 selects the default
// window.
func NewStage(records RecordStore, objects ObjectStore, vault coldstore.Vault, coolingOff time.Duration, logger *slog.Logger) *Stage {
	if coolingOff <= 0 {
		coolingOff = DefaultCoolingOff
	}

	return &Stage{
		records:    records,
		objects:    objects,
		vault:      vault,
		coolingOff: coolingOff,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle processes one archival request.
//
// A request that arrives before its cooling-off deadline is deferred without
// touching the record or the hot object. Once due, the user's current role is
// re-checked: an upgrade during the window cancels archival entirely.
//
// The write order is upload, record, delete. Each step is safe to repeat on
// redelivery: a duplicate vault upload orphans one cold entry, and a record
// that already carries an archive id short-circuits straight to the hot-copy
// delete.
func (s *Stage) Handle(ctx context.Context, body []byte) stage.Outcome {
	req, err := messages.DecodeArchivalRequest(body)
	if err != nil {
		s.logger.Error("Malformed archival request",
			slog.String("body", string(body)),
			slog.Any("error", err),
		)
		return stage.Reject
	}

	logger := s.logger.With(
		slog.String("job_id", req.JobID),
		slog.String("user_id", req.UserID),
	)

	deadline := time.Unix(req.CompleteTime, 0).Add(s.coolingOff)
	if s.now().Before(deadline) {
		logger.Debug("Archival not due yet",
			slog.Time("deadline", deadline),
		)
		return stage.RetryLater
	}

	record, err := s.records.Get(ctx, req.JobID)
	if err != nil {
		logger.Error("Failed to load job record",
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	if record.UserRole == jobs.RolePremiumUser {
		logger.Info("User upgraded during cooling-off - skipping archival")
		return stage.Ack
	}

	if record.Archived() {
		return s.removeHotCopy(ctx, logger, req)
	}

	object, err := s.objects.Get(ctx, req.S3ResultsBucket, req.KeyAnnot)
	if err != nil {
		logger.Error("Failed to read hot result object",
			slog.String("key", req.KeyAnnot),
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	archiveID, err := s.vault.Upload(ctx, object)
	if err != nil {
		logger.Error("Failed to upload archive",
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	if err := s.records.SetArchiveID(ctx, req.JobID, archiveID); err != nil {
		logger.Error("Failed to persist archive id",
			slog.String("archive_id", archiveID),
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	logger.Info("Result archived",
		slog.String("archive_id", archiveID),
		slog.Int("size", len(object)),
	)

	return s.removeHotCopy(ctx, logger, req)
}

// removeHotCopy deletes the hot result object once its archive handle is on
// the record. Safe on redelivery: a missing object is already done.
func (s *Stage) removeHotCopy(ctx context.Context, logger *slog.Logger, req *messages.ArchivalRequest) stage.Outcome {
	exists, err := s.objects.Exists(ctx, req.S3ResultsBucket, req.KeyAnnot)
	if err != nil {
		logger.Error("Failed to check hot result object",
			slog.String("key", req.KeyAnnot),
			slog.Any("error", err),
		)
		return stage.RetryLater
	}
	if !exists {
		return stage.Ack
	}

	if err := s.objects.Delete(ctx, req.S3ResultsBucket, req.KeyAnnot); err != nil {
		logger.Error("Failed to delete hot result object",
			slog.String("key", req.KeyAnnot),
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	logger.Info("Hot result copy removed",
		slog.String("key", req.KeyAnnot),
	)

	return stage.Ack
}
