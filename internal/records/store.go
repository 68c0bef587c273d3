// Package records is the durable job record store backed by PostgreSQL.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/seqlab/annopipe/internal/jobs"
)

// Store handles all job record database operations
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

const recordColumns = `
	job_id, user_id, input_file_name, s3_inputs_bucket, s3_key_input_file,
	submit_time, job_status, email, user_role,
	s3_results_bucket, s3_key_result_file, s3_key_log_file, complete_time,
	results_file_archive_id, retrieval_job_id
`

// Put creates the record or fully overwrites an existing one.
func (s *Store) Put(ctx context.Context, r *jobs.Record) error {
	query := `
		INSERT INTO annotations (` + recordColumns + `, created_at, updated_at)
		VALUES (
			:job_id, :user_id, :input_file_name, :s3_inputs_bucket, :s3_key_input_file,
			:submit_time, :job_status, :email, :user_role,
			:s3_results_bucket, :s3_key_result_file, :s3_key_log_file, :complete_time,
			:results_file_archive_id, :retrieval_job_id, NOW(), NOW()
		)
		ON CONFLICT (job_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			input_file_name = EXCLUDED.input_file_name,
			s3_inputs_bucket = EXCLUDED.s3_inputs_bucket,
			s3_key_input_file = EXCLUDED.s3_key_input_file,
			submit_time = EXCLUDED.submit_time,
			job_status = EXCLUDED.job_status,
			email = EXCLUDED.email,
			user_role = EXCLUDED.user_role,
			s3_results_bucket = EXCLUDED.s3_results_bucket,
			s3_key_result_file = EXCLUDED.s3_key_result_file,
			s3_key_log_file = EXCLUDED.s3_key_log_file,
			complete_time = EXCLUDED.complete_time,
			results_file_archive_id = EXCLUDED.results_file_archive_id,
			retrieval_job_id = EXCLUDED.retrieval_job_id,
			updated_at = NOW()
	`

	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return fmt.Errorf("failed to put job record: %w", err)
	}

	return nil
}

// Get retrieves a job record by its ID
func (s *Store) Get(ctx context.Context, jobID string) (*jobs.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM annotations WHERE job_id = $1`

	var r jobs.Record
	if err := s.db.GetContext(ctx, &r, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}

	return &r, nil
}

// MarkRunning performs the conditional PENDING -> RUNNING transition. It is
// the only mutual-exclusion primitive in the system: when two dispatch
// attempts race, exactly one update matches the PENDING row and the other
// observes ErrPreconditionFailed.
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	query := `
		UPDATE annotations
		SET job_status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND job_status = $3
	`

	result, err := s.db.ExecContext(ctx, query, jobs.StatusRunning, jobID, jobs.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job not transitioned to RUNNING - already advanced or not found",
			slog.String("job_id", jobID),
		)
		return jobs.ErrPreconditionFailed
	}

	s.logger.Info("Job transitioned to RUNNING",
		slog.String("job_id", jobID),
	)

	return nil
}

// MarkCompleted sets the COMPLETED status together with the result metadata.
// Idempotent by field: reapplying the same completion writes the same values,
// and complete_time is preserved once set.
func (s *Store) MarkCompleted(ctx context.Context, jobID, resultsBucket, resultKey, logKey string, completeTime int64) error {
	query := `
		UPDATE annotations
		SET job_status = $1,
		    s3_results_bucket = $2,
		    s3_key_result_file = $3,
		    s3_key_log_file = $4,
		    complete_time = COALESCE(complete_time, $5),
		    updated_at = NOW()
		WHERE job_id = $6
	`

	result, err := s.db.ExecContext(ctx, query,
		jobs.StatusCompleted, resultsBucket, resultKey, logKey, completeTime, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return jobs.ErrNotFound
	}

	s.logger.Info("Job transitioned to COMPLETED",
		slog.String("job_id", jobID),
		slog.String("result_key", resultKey),
	)

	return nil
}

// SetArchiveID persists the cold-storage archive handle. Unconditional merge;
// the last write wins under redelivery.
func (s *Store) SetArchiveID(ctx context.Context, jobID, archiveID string) error {
	query := `
		UPDATE annotations
		SET results_file_archive_id = $1,
		    updated_at = NOW()
		WHERE job_id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, archiveID, jobID); err != nil {
		return fmt.Errorf("failed to set archive id: %w", err)
	}

	return nil
}

// SetRetrievalJobID persists the cold-storage retrieval job identifier.
func (s *Store) SetRetrievalJobID(ctx context.Context, jobID, retrievalJobID string) error {
	query := `
		UPDATE annotations
		SET retrieval_job_id = $1,
		    updated_at = NOW()
		WHERE job_id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, retrievalJobID, jobID); err != nil {
		return fmt.Errorf("failed to set retrieval job id: %w", err)
	}

	return nil
}

// ClearArchiveByRetrieval removes the archive handle from whichever record the
// retrieval job belongs to, recording that the hot copy exists again.
func (s *Store) ClearArchiveByRetrieval(ctx context.Context, retrievalJobID string) error {
	query := `
		UPDATE annotations
		SET results_file_archive_id = NULL,
		    updated_at = NOW()
		WHERE retrieval_job_id = $1
	`

	if _, err := s.db.ExecContext(ctx, query, retrievalJobID); err != nil {
		return fmt.Errorf("failed to clear archive id: %w", err)
	}

	return nil
}

// SetUserRole updates the role on every record the user owns.
func (s *Store) SetUserRole(ctx context.Context, userID, role string) error {
	query := `
		UPDATE annotations
		SET user_role = $1,
		    updated_at = NOW()
		WHERE user_id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, role, userID); err != nil {
		return fmt.Errorf("failed to set user role: %w", err)
	}

	s.logger.Info("User role updated",
		slog.String("user_id", userID),
		slog.String("user_role", role),
	)

	return nil
}

// ListArchived returns the user's completed records whose result lives only
// in cold storage.
func (s *Store) ListArchived(ctx context.Context, userID string) ([]jobs.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM annotations
		WHERE user_id = $1
		  AND job_status = $2
		  AND results_file_archive_id IS NOT NULL`

	var result []jobs.Record
	if err := s.db.SelectContext(ctx, &result, query, userID, jobs.StatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to list archived records: %w", err)
	}

	return result, nil
}

// Filter narrows List results. Zero values are ignored.
type Filter struct {
	UserID   string
	Status   string
	PageSize int
	Cursor   *Cursor
}

// Cursor is a keyset pagination position over (submit_time, job_id).
type Cursor struct {
	SubmitTime time.Time
	JobID      string
}

// List returns up to PageSize+1 records ordered newest first; the caller uses
// the extra row to detect another page.
func (s *Store) List(ctx context.Context, filter Filter) ([]jobs.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM annotations WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND job_status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (submit_time, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.SubmitTime.Unix(), filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY submit_time DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var result []jobs.Record
	if err := s.db.SelectContext(ctx, &result, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}

	return result, nil
}
