package restore

import (
	"context"
	"log/slog"

	"github.com/seqlab/annopipe/internal/coldstore"
	"github.com/seqlab/annopipe/internal/messages"
	"github.com/seqlab/annopipe/internal/stage"
)

// ThawRecordStore is the job record surface the thaw stage needs.
type ThawRecordStore interface {
	ClearArchiveByRetrieval(ctx context.Context, retrievalJobID string) error
}

// Uploader writes the retrieved bytes back to hot storage.
type Uploader interface {
	Put(ctx context.Context, bucket, key string, body []byte) error
}

// ThawStage finishes retrievals: it copies the retrieved archive back to its
// original hot-storage key and clears the archive handle from the record.
type ThawStage struct {
	records       ThawRecordStore
	objects       Uploader
	vault         coldstore.Vault
	resultsBucket string
	logger        *slog.Logger
}

// NewThawStage creates a thaw stage.
func NewThawStage(records ThawRecordStore, objects Uploader, vault coldstore.Vault, resultsBucket string, logger *slog.Logger) *ThawStage {
	return &ThawStage{
		records:       records,
		objects:       objects,
		vault:         vault,
		resultsBucket: resultsBucket,
		logger:        logger,
	}
}

// Handle processes one thaw notification. A retrieval still in progress is
// deferred; a failed retrieval is dead-lettered so it cannot retry forever.
// The notification carries the target hot-storage key in its description.
func (s *ThawStage) Handle(ctx context.Context, body []byte) stage.Outcome {
	notification, err := messages.DecodeThawNotification(body)
	if err != nil {
		s.logger.Error("Malformed thaw notification",
			slog.String("body", string(body)),
			slog.Any("error", err),
		)
		return stage.Reject
	}

	logger := s.logger.With(
		slog.String("retrieval_job_id", notification.RetrievalJobID),
		slog.String("archive_id", notification.ArchiveID),
	)

	status, err := s.vault.DescribeRetrieval(ctx, notification.RetrievalJobID)
	if err != nil {
		logger.Error("Failed to describe retrieval",
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	switch status {
	case coldstore.StatusInProgress:
		logger.Debug("Retrieval still in progress")
		return stage.RetryLater
	case coldstore.StatusFailed:
		logger.Error("Retrieval failed - dead-lettering notification")
		return stage.Reject
	}

	object, err := s.vault.RetrievalOutput(ctx, notification.RetrievalJobID)
	if err != nil {
		logger.Error("Failed to fetch retrieval output",
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	key := notification.JobDescription
	if err := s.objects.Put(ctx, s.resultsBucket, key, object); err != nil {
		logger.Error("Failed to upload thawed result",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	if err := s.records.ClearArchiveByRetrieval(ctx, notification.RetrievalJobID); err != nil {
		// The hot object is already back; redelivery repeats the upload and
		// this clear, both idempotent.
		logger.Error("Failed to clear archive id",
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	logger.Info("Result thawed back to hot storage",
		slog.String("key", key),
		slog.Int("size", len(object)),
	)

	return stage.Ack
}
