package jobs

// Status is the annotation lifecycle state of a job.
//
// Transitions are monotone: PENDING -> RUNNING -> COMPLETED. RUNNING is
// reachable only from PENDING, enforced by the record store's conditional
// update. Archival is tracked orthogonally through ResultsFileArchiveID.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
)

// User roles
const (
	RoleFreeUser    = "free_user"
	RolePremiumUser = "premium_user"
)

// Record is the durable job record, the single source of truth for one
// annotation job. Pointer fields are absent until the owning stage sets them.
type Record struct {
	JobID          string `db:"job_id" json:"job_id"`
	UserID         string `db:"user_id" json:"user_id"`
	InputFileName  string `db:"input_file_name" json:"input_file_name"`
	S3InputsBucket string `db:"s3_inputs_bucket" json:"s3_inputs_bucket"`
	S3KeyInputFile string `db:"s3_key_input_file" json:"s3_key_input_file"`
	SubmitTime     int64  `db:"submit_time" json:"submit_time"`
	JobStatus      Status `db:"job_status" json:"job_status"`
	Email          string `db:"email" json:"email"`
	UserRole       string `db:"user_role" json:"user_role"`

	S3ResultsBucket      *string `db:"s3_results_bucket" json:"s3_results_bucket,omitempty"`
	S3KeyResultFile      *string `db:"s3_key_result_file" json:"s3_key_result_file,omitempty"`
	S3KeyLogFile         *string `db:"s3_key_log_file" json:"s3_key_log_file,omitempty"`
	CompleteTime         *int64  `db:"complete_time" json:"complete_time,omitempty"`
	ResultsFileArchiveID *string `db:"results_file_archive_id" json:"results_file_archive_id,omitempty"`
	RetrievalJobID       *string `db:"retrieval_job_id" json:"retrieval_job_id,omitempty"`
}

// Archived reports whether the result has been migrated to cold storage.
func (r *Record) Archived() bool {
	return r.ResultsFileArchiveID != nil && *r.ResultsFileArchiveID != ""
}

// ValidRole reports whether role is a known user role.
func ValidRole(role string) bool {
	return role == RoleFreeUser || role == RolePremiumUser
}
