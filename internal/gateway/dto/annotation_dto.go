package dto

// SubmitAnnotationRequest is the POST body for a new annotation job.
type SubmitAnnotationRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	Email         string `json:"email" binding:"required"`
	UserRole      string `json:"user_role" binding:"required"`
	InputFileName string `json:"input_file_name" binding:"required"`
}

// SubmitAnnotationResponse returns the created job with the input-object key
// the client uploads to.
type SubmitAnnotationResponse struct {
	JobID          string `json:"job_id"`
	S3InputsBucket string `json:"s3_inputs_bucket"`
	S3KeyInputFile string `json:"s3_key_input_file"`
	JobStatus      string `json:"job_status"`
	SubmitTime     int64  `json:"submit_time"`
}

// ListAnnotationsRequest carries the list query parameters.
type ListAnnotationsRequest struct {
	UserID   string `form:"user_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListAnnotationsResponse is one page of jobs plus the cursor for the next.
type ListAnnotationsResponse struct {
	Annotations []AnnotationDTO `json:"annotations"`
	NextCursor  string          `json:"next_cursor,omitempty"`
}

// AnnotationDTO is the external representation of one job record.
type AnnotationDTO struct {
	JobID          string `json:"job_id"`
	UserID         string `json:"user_id"`
	InputFileName  string `json:"input_file_name"`
	SubmitTime     int64  `json:"submit_time"`
	JobStatus      string `json:"job_status"`
	UserRole       string `json:"user_role"`
	S3InputsBucket string `json:"s3_inputs_bucket"`
	S3KeyInputFile string `json:"s3_key_input_file"`

	S3ResultsBucket *string `json:"s3_results_bucket,omitempty"`
	S3KeyResultFile *string `json:"s3_key_result_file,omitempty"`
	S3KeyLogFile    *string `json:"s3_key_log_file,omitempty"`
	CompleteTime    *int64  `json:"complete_time,omitempty"`
	Archived        bool    `json:"archived"`
}
