// Package coldstore models the cold-storage archive service: cheap,
// high-latency storage whose contents need an explicit retrieval job before
// they are readable again.
package coldstore

import (
	"context"
	"errors"
	"fmt"
)

// Tier selects retrieval latency/cost. Expedited draws from a bounded quota.
type Tier string

const (
	TierExpedited Tier = "Expedited"
	TierStandard  Tier = "Standard"
)

// Status is the state of a retrieval job.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusSucceeded  Status = "Succeeded"
	StatusFailed     Status = "Failed"
)

var (
	// ErrExpeditedUnavailable is returned when the expedited retrieval quota
	// is exhausted; callers fall back to the standard tier.
	ErrExpeditedUnavailable = errors.New("expedited retrieval unavailable")

	// ErrRetrievalNotFound is returned for an unknown retrieval job id
	ErrRetrievalNotFound = errors.New("retrieval job not found")

	// ErrRetrievalNotReady is returned when output is requested before the
	// retrieval job has succeeded
	ErrRetrievalNotReady = errors.New("retrieval job not ready")
)

// RetrievalRequest initiates one archive retrieval. Description is free text
// carried through to the completion notification; the pipeline stores the
// target result key there.
type RetrievalRequest struct {
	ArchiveID   string
	Tier        Tier
	Description string
}

// Vault is the cold-storage provider contract.
type Vault interface {
	// Upload stores body as a new archive entry and returns its archive id.
	Upload(ctx context.Context, body []byte) (string, error)

	// InitiateRetrieval starts an asynchronous retrieval job and returns its
	// id. Completion is signaled out of band on the thaw notification queue.
	InitiateRetrieval(ctx context.Context, req RetrievalRequest) (string, error)

	// DescribeRetrieval reports the current status of a retrieval job.
	DescribeRetrieval(ctx context.Context, retrievalJobID string) (Status, error)

	// RetrievalOutput returns the retrieved archive bytes of a succeeded job.
	RetrievalOutput(ctx context.Context, retrievalJobID string) ([]byte, error)
}

func (t Tier) valid() bool {
	return t == TierExpedited || t == TierStandard
}

func validateRequest(req RetrievalRequest) error {
	if req.ArchiveID == "" {
		return fmt.Errorf("archive id is required")
	}
	if !req.Tier.valid() {
		return fmt.Errorf("unknown retrieval tier %q", req.Tier)
	}
	return nil
}
