package coldstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seqlab/annopipe/internal/messages"
)

// objectStore is the subset of the object storage client the vault needs.
type objectStore interface {
	Put(ctx context.Context, bucket, key string, body []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// Notifier publishes a thaw notification when a retrieval job finishes.
type Notifier interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Config holds object vault settings
type Config struct {
	Bucket         string
	ThawRoutingKey string
	ExpeditedQuota int
	ExpeditedDelay time.Duration
	StandardDelay  time.Duration
}

// ObjectVault implements Vault over a dedicated bucket in S3-compatible
// storage. Archives live under "archives/<archive_id>". Retrieval jobs are
// tracked in memory and complete after a tier-dependent delay, publishing a
// thaw notification; a vault restart drops pending retrievals, which the
// restore stage tolerates through queue redelivery.
type ObjectVault struct {
	objects objectStore
	notify  Notifier
	config  *Config
	logger  *slog.Logger

	mu            sync.Mutex
	expeditedLeft int
	retrievals    map[string]*retrieval
}

type retrieval struct {
	archiveID   string
	description string
	status      Status
}

// NewObjectVault creates a new object-storage-backed vault
func NewObjectVault(objects objectStore, notify Notifier, config *Config, logger *slog.Logger) *ObjectVault {
	return &ObjectVault{
		objects:       objects,
		notify:        notify,
		config:        config,
		logger:        logger,
		expeditedLeft: config.ExpeditedQuota,
		retrievals:    make(map[string]*retrieval),
	}
}

func archiveKey(archiveID string) string {
	return "archives/" + archiveID
}

// Upload stores body as a new archive entry. Each call creates a fresh entry;
// duplicate uploads under redelivery yield orphaned entries that are never
// reclaimed here.
func (v *ObjectVault) Upload(ctx context.Context, body []byte) (string, error) {
	archiveID := uuid.New().String()

	if err := v.objects.Put(ctx, v.config.Bucket, archiveKey(archiveID), body); err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	v.logger.Info("Archive entry created",
		slog.String("archive_id", archiveID),
		slog.Int("size", len(body)),
	)

	return archiveID, nil
}

// InitiateRetrieval starts an asynchronous retrieval job
func (v *ObjectVault) InitiateRetrieval(ctx context.Context, req RetrievalRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	exists, err := v.objects.Exists(ctx, v.config.Bucket, archiveKey(req.ArchiveID))
	if err != nil {
		return "", fmt.Errorf("failed to check archive %q: %w", req.ArchiveID, err)
	}
	if !exists {
		return "", fmt.Errorf("archive %q does not exist", req.ArchiveID)
	}

	delay := v.config.StandardDelay
	if req.Tier == TierExpedited {
		v.mu.Lock()
		if v.expeditedLeft <= 0 {
			v.mu.Unlock()
			return "", ErrExpeditedUnavailable
		}
		v.expeditedLeft--
		v.mu.Unlock()
		delay = v.config.ExpeditedDelay
	}

	retrievalJobID := uuid.New().String()

	v.mu.Lock()
	v.retrievals[retrievalJobID] = &retrieval{
		archiveID:   req.ArchiveID,
		description: req.Description,
		status:      StatusInProgress,
	}
	v.mu.Unlock()

	time.AfterFunc(delay, func() {
		v.completeRetrieval(retrievalJobID)
	})

	v.logger.Info("Retrieval job initiated",
		slog.String("retrieval_job_id", retrievalJobID),
		slog.String("archive_id", req.ArchiveID),
		slog.String("tier", string(req.Tier)),
		slog.Duration("delay", delay),
	)

	return retrievalJobID, nil
}

func (v *ObjectVault) completeRetrieval(retrievalJobID string) {
	v.mu.Lock()
	r, ok := v.retrievals[retrievalJobID]
	if !ok {
		v.mu.Unlock()
		return
	}
	r.status = StatusSucceeded
	notification := messages.ThawNotification{
		ArchiveID:      r.archiveID,
		RetrievalJobID: retrievalJobID,
		JobDescription: r.description,
	}
	v.mu.Unlock()

	body, err := messages.Encode(&notification)
	if err != nil {
		v.logger.Error("Failed to encode thaw notification",
			slog.String("retrieval_job_id", retrievalJobID),
			slog.Any("error", err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := v.notify.Publish(ctx, v.config.ThawRoutingKey, body); err != nil {
		// The thaw stage still converges: its own redeliveries poll
		// DescribeRetrieval until the job reports Succeeded.
		v.logger.Error("Failed to publish thaw notification",
			slog.String("retrieval_job_id", retrievalJobID),
			slog.Any("error", err),
		)
		return
	}

	v.logger.Info("Retrieval job succeeded",
		slog.String("retrieval_job_id", retrievalJobID),
	)
}

// DescribeRetrieval reports the status of a retrieval job
func (v *ObjectVault) DescribeRetrieval(_ context.Context, retrievalJobID string) (Status, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	r, ok := v.retrievals[retrievalJobID]
	if !ok {
		return "", fmt.Errorf("retrieval job %q: %w", retrievalJobID, ErrRetrievalNotFound)
	}

	return r.status, nil
}

// RetrievalOutput returns the retrieved bytes of a succeeded retrieval job
func (v *ObjectVault) RetrievalOutput(ctx context.Context, retrievalJobID string) ([]byte, error) {
	v.mu.Lock()
	r, ok := v.retrievals[retrievalJobID]
	if !ok {
		v.mu.Unlock()
		return nil, fmt.Errorf("retrieval job %q: %w", retrievalJobID, ErrRetrievalNotFound)
	}
	if r.status != StatusSucceeded {
		v.mu.Unlock()
		return nil, fmt.Errorf("retrieval job %q: %w", retrievalJobID, ErrRetrievalNotReady)
	}
	archiveID := r.archiveID
	v.mu.Unlock()

	body, err := v.objects.Get(ctx, v.config.Bucket, archiveKey(archiveID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch retrieval output: %w", err)
	}

	return body, nil
}
