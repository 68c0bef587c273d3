// Package messages defines the payload schema for each queue boundary.
//
// Decoding is strict: a payload missing any required field is an error, so a
// malformed message is rejected instead of half-processed.
package messages

import (
	"encoding/json"
	"fmt"
)

// JobRequest is published by the gateway and consumed by the dispatch stage.
type JobRequest struct {
	S3InputsBucket string `json:"s3_inputs_bucket"`
	S3KeyInputFile string `json:"s3_key_input_file"`
	JobID          string `json:"job_id"`
	InputFileName  string `json:"input_file_name"`
	UserID         string `json:"user_id"`
}

// CompletionNotification is published by the worker epilogue for downstream
// notification consumers (for example the e-mail sender).
type CompletionNotification struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
	File   string `json:"file"`
	Email  string `json:"email"`
}

// ArchivalRequest is published by the worker epilogue for free-tier jobs and
// consumed by the archive stage.
type ArchivalRequest struct {
	JobID           string `json:"job_id"`
	UserID          string `json:"user_id"`
	UserRole        string `json:"user_role"`
	CompleteTime    int64  `json:"complete_time"`
	FileAnnot       string `json:"file_annot"`
	S3ResultsBucket string `json:"s3_results_bucket"`
	KeyAnnot        string `json:"key_annot"`
}

// RestoreRequest is published by the gateway on subscription upgrade and
// consumed by the restore-initiate stage.
type RestoreRequest struct {
	ResultsFileArchiveID string `json:"results_file_archive_id"`
	JobID                string `json:"job_id"`
	S3KeyResultFile      string `json:"s3_key_result_file"`
}

// ThawNotification is the cold-storage provider's retrieval notification.
// JobDescription carries the target result key, set at retrieval initiation.
type ThawNotification struct {
	ArchiveID      string `json:"ArchiveId"`
	RetrievalJobID string `json:"JobId"`
	JobDescription string `json:"JobDescription"`
}

// Encode marshals any payload to its wire form.
func Encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return body, nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

type requiredField struct {
	name  string
	value string
}

// requireFields checks fields in declaration order, so the error always names
// the first missing one.
func requireFields(fields []requiredField) error {
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("missing required field %q", f.name)
		}
	}
	return nil
}

// DecodeJobRequest parses and validates a job-request payload.
func DecodeJobRequest(body []byte) (*JobRequest, error) {
	var m JobRequest
	if err := decode(body, &m); err != nil {
		return nil, err
	}

	err := requireFields([]requiredField{
		{"s3_inputs_bucket", m.S3InputsBucket},
		{"s3_key_input_file", m.S3KeyInputFile},
		{"job_id", m.JobID},
		{"input_file_name", m.InputFileName},
		{"user_id", m.UserID},
	})
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// DecodeArchivalRequest parses and validates an archival-request payload.
func DecodeArchivalRequest(body []byte) (*ArchivalRequest, error) {
	var m ArchivalRequest
	if err := decode(body, &m); err != nil {
		return nil, err
	}

	err := requireFields([]requiredField{
		{"job_id", m.JobID},
		{"user_id", m.UserID},
		{"user_role", m.UserRole},
		{"file_annot", m.FileAnnot},
		{"s3_results_bucket", m.S3ResultsBucket},
		{"key_annot", m.KeyAnnot},
	})
	if err != nil {
		return nil, err
	}

	if m.CompleteTime <= 0 {
		return nil, fmt.Errorf("missing required field %q", "complete_time")
	}

	return &m, nil
}

// DecodeRestoreRequest parses and validates a restore-request payload.
func DecodeRestoreRequest(body []byte) (*RestoreRequest, error) {
	var m RestoreRequest
	if err := decode(body, &m); err != nil {
		return nil, err
	}

	err := requireFields([]requiredField{
		{"results_file_archive_id", m.ResultsFileArchiveID},
		{"job_id", m.JobID},
		{"s3_key_result_file", m.S3KeyResultFile},
	})
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// DecodeThawNotification parses and validates a thaw-notification payload.
func DecodeThawNotification(body []byte) (*ThawNotification, error) {
	var m ThawNotification
	if err := decode(body, &m); err != nil {
		return nil, err
	}

	err := requireFields([]requiredField{
		{"ArchiveId", m.ArchiveID},
		{"JobId", m.RetrievalJobID},
		{"JobDescription", m.JobDescription},
	})
	if err != nil {
		return nil, err
	}

	return &m, nil
}
