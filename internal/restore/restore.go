// Package restore brings an archived result back to hot storage. The
// initiate stage starts a cold-storage retrieval when a user upgrades; the
// thaw stage finishes the round trip when the provider signals completion.
package restore

import (
	"context"
	"log/slog"

	"github.com/seqlab/annopipe/internal/coldstore"
	"github.com/seqlab/annopipe/internal/messages"
	"github.com/seqlab/annopipe/internal/stage"
)

// RecordStore is the job record surface the initiate stage needs.
type RecordStore interface {
	SetRetrievalJobID(ctx context.Context, jobID, retrievalJobID string) error
}

// InitiateStage starts archive retrievals.
type InitiateStage struct {
	records RecordStore
	vault   coldstore.Vault
	logger  *slog.Logger
}

// NewInitiateStage creates a restore-initiate stage.
func NewInitiateStage(records RecordStore, vault coldstore.Vault, logger *slog.Logger) *InitiateStage {
	return &InitiateStage{
		records: records,
		vault:   vault,
		logger:  logger,
	}
}

// Handle processes one restore request. The expedited tier is tried first and
// the standard tier is the fallback on any expedited failure, not just quota
// exhaustion. The target result key rides along as the retrieval description
// so the thaw stage knows where to put the bytes back.
func (s *InitiateStage) Handle(ctx context.Context, body []byte) stage.Outcome {
	req, err := messages.DecodeRestoreRequest(body)
	if err != nil {
		s.logger.Error("Malformed restore request",
			slog.String("body", string(body)),
			slog.Any("error", err),
		)
		return stage.Reject
	}

	logger := s.logger.With(
		slog.String("job_id", req.JobID),
		slog.String("archive_id", req.ResultsFileArchiveID),
	)

	retrievalJobID, tier, err := s.initiate(ctx, logger, req)
	if err != nil {
		logger.Error("Failed to initiate retrieval on either tier",
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	if err := s.records.SetRetrievalJobID(ctx, req.JobID, retrievalJobID); err != nil {
		// Redelivery starts a second retrieval for the same archive; the
		// extra retrieval completes and overwrites the same hot object.
		logger.Error("Failed to persist retrieval job id",
			slog.String("retrieval_job_id", retrievalJobID),
			slog.Any("error", err),
		)
		return stage.RetryLater
	}

	logger.Info("Retrieval initiated",
		slog.String("retrieval_job_id", retrievalJobID),
		slog.String("tier", string(tier)),
	)

	return stage.Ack
}

func (s *InitiateStage) initiate(ctx context.Context, logger *slog.Logger, req *messages.RestoreRequest) (string, coldstore.Tier, error) {
	request := coldstore.RetrievalRequest{
		ArchiveID:   req.ResultsFileArchiveID,
		Tier:        coldstore.TierExpedited,
		Description: req.S3KeyResultFile,
	}

	retrievalJobID, err := s.vault.InitiateRetrieval(ctx, request)
	if err == nil {
		return retrievalJobID, coldstore.TierExpedited, nil
	}

	logger.Warn("Expedited retrieval unavailable - falling back to standard",
		slog.Any("error", err),
	)

	request.Tier = coldstore.TierStandard
	retrievalJobID, err = s.vault.InitiateRetrieval(ctx, request)
	if err != nil {
		return "", "", err
	}

	return retrievalJobID, coldstore.TierStandard, nil
}
