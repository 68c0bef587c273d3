package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/seqlab/annopipe/internal/gateway/dto"
	"github.com/seqlab/annopipe/internal/jobs"
	"github.com/seqlab/annopipe/internal/messages"
	"github.com/seqlab/annopipe/internal/records"
)

// inputKey builds the input-object key the job's file is uploaded under.
func inputKey(prefix, userID, jobID, file string) string {
	return prefix + userID + "/" + jobID + "~" + file
}

// SubmitAnnotation handles POST /api/v1/annotations
// Creates a PENDING job record and hands the request to the dispatch queue.
func (h *AnnotationHandler) SubmitAnnotation(c *gin.Context) {
	var req dto.SubmitAnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if !jobs.ValidRole(req.UserRole) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user_role must be free_user or premium_user",
		})
		return
	}

	jobID := uuid.New().String()
	key := inputKey(h.config.KeyPrefix, req.UserID, jobID, req.InputFileName)
	submitTime := time.Now().Unix()

	record := jobs.Record{
		JobID:          jobID,
		UserID:         req.UserID,
		InputFileName:  req.InputFileName,
		S3InputsBucket: h.config.InputsBucket,
		S3KeyInputFile: key,
		SubmitTime:     submitTime,
		JobStatus:      jobs.StatusPending,
		Email:          req.Email,
		UserRole:       req.UserRole,
	}

	if err := h.records.Put(c.Request.Context(), &record); err != nil {
		h.logger.Error("Failed to create job record", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	body, err := messages.Encode(messages.JobRequest{
		S3InputsBucket: h.config.InputsBucket,
		S3KeyInputFile: key,
		JobID:          jobID,
		InputFileName:  req.InputFileName,
		UserID:         req.UserID,
	})
	if err == nil {
		err = h.publisher.Publish(c.Request.Context(), h.config.RequestRoutingKey, body)
	}
	if err != nil {
		// The PENDING record exists but no dispatch message went out; the
		// client sees the failure and resubmits.
		h.logger.Error("Failed to publish job request",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to queue job",
		})
		return
	}

	h.logger.Info("Annotation job submitted",
		slog.String("job_id", jobID),
		slog.String("user_id", req.UserID),
	)

	c.JSON(http.StatusCreated, dto.SubmitAnnotationResponse{
		JobID:          jobID,
		S3InputsBucket: h.config.InputsBucket,
		S3KeyInputFile: key,
		JobStatus:      string(jobs.StatusPending),
		SubmitTime:     submitTime,
	})
}

// GetAnnotation handles GET /api/v1/annotations/:job_id
func (h *AnnotationHandler) GetAnnotation(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	record, err := h.records.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job record", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, toDTO(record))
}

// ListAnnotations handles GET /api/v1/annotations
// Lists jobs with optional filtering and keyset pagination.
func (h *AnnotationHandler) ListAnnotations(c *gin.Context) {
	var req dto.ListAnnotationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeListCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := records.Filter{
		UserID:   req.UserID,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	result, err := h.records.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list job records", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(result) > req.PageSize
	if hasMore {
		result = result[:req.PageSize]
	}

	annotations := make([]dto.AnnotationDTO, len(result))
	for i := range result {
		annotations[i] = toDTO(&result[i])
	}

	var nextCursor string
	if hasMore {
		last := result[len(result)-1]
		nextCursor = EncodeListCursor(&records.Cursor{
			SubmitTime: time.Unix(last.SubmitTime, 0),
			JobID:      last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListAnnotationsResponse{
		Annotations: annotations,
		NextCursor:  nextCursor,
	})
}

func toDTO(r *jobs.Record) dto.AnnotationDTO {
	return dto.AnnotationDTO{
		JobID:           r.JobID,
		UserID:          r.UserID,
		InputFileName:   r.InputFileName,
		SubmitTime:      r.SubmitTime,
		JobStatus:       string(r.JobStatus),
		UserRole:        r.UserRole,
		S3InputsBucket:  r.S3InputsBucket,
		S3KeyInputFile:  r.S3KeyInputFile,
		S3ResultsBucket: r.S3ResultsBucket,
		S3KeyResultFile: r.S3KeyResultFile,
		S3KeyLogFile:    r.S3KeyLogFile,
		CompleteTime:    r.CompleteTime,
		Archived:        r.Archived(),
	}
}
