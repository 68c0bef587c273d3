package handler

import (
	"context"
	"log/slog"

	"github.com/seqlab/annopipe/internal/jobs"
	"github.com/seqlab/annopipe/internal/records"
)

// RecordStore is the job record surface the gateway needs.
type RecordStore interface {
	Put(ctx context.Context, r *jobs.Record) error
	Get(ctx context.Context, jobID string) (*jobs.Record, error)
	List(ctx context.Context, filter records.Filter) ([]jobs.Record, error)
	SetUserRole(ctx context.Context, userID, role string) error
	ListArchived(ctx context.Context, userID string) ([]jobs.Record, error)
}

// Publisher hands job requests to the dispatch queue.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Config holds gateway handler settings
type Config struct {
	InputsBucket      string
	KeyPrefix         string
	RequestRoutingKey string
	RestoreRoutingKey string
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Records   RecordStore
	Publisher Publisher
	Config    *Config
}

// AnnotationHandler handles annotation job HTTP requests
type AnnotationHandler struct {
	logger    *slog.Logger
	records   RecordStore
	publisher Publisher
	config    *Config
}

// NewAnnotationHandler creates a new AnnotationHandler instance
func NewAnnotationHandler(deps *Dependencies) *AnnotationHandler {
	return &AnnotationHandler{
		logger:    deps.Logger,
		records:   deps.Records,
		publisher: deps.Publisher,
		config:    deps.Config,
	}
}
