package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seqlab/annopipe/internal/gateway/dto"
	"github.com/seqlab/annopipe/internal/jobs"
	"github.com/seqlab/annopipe/internal/messages"
)

// UpgradeSubscription handles POST /api/v1/subscriptions
// Promotes the user to premium and requests a cold-storage restore for every
// archived result, so previously archived downloads become available again.
func (h *AnnotationHandler) UpgradeSubscription(c *gin.Context) {
	var req dto.UpgradeSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	ctx := c.Request.Context()

	if err := h.records.SetUserRole(ctx, req.UserID, jobs.RolePremiumUser); err != nil {
		h.logger.Error("Failed to update user role",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to upgrade subscription",
		})
		return
	}

	archived, err := h.records.ListArchived(ctx, req.UserID)
	if err != nil {
		h.logger.Error("Failed to list archived jobs",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list archived jobs",
		})
		return
	}

	requested := 0
	for i := range archived {
		record := &archived[i]
		if !record.Archived() || record.S3KeyResultFile == nil {
			continue
		}

		body, err := messages.Encode(messages.RestoreRequest{
			ResultsFileArchiveID: *record.ResultsFileArchiveID,
			JobID:                record.JobID,
			S3KeyResultFile:      *record.S3KeyResultFile,
		})
		if err == nil {
			err = h.publisher.Publish(ctx, h.config.RestoreRoutingKey, body)
		}
		if err != nil {
			// The role change already stuck; the remaining jobs are still
			// attempted and a repeat upgrade call retries the failed ones
			h.logger.Error("Failed to publish restore request",
				slog.String("job_id", record.JobID),
				slog.String("error", err.Error()),
			)
			continue
		}
		requested++
	}

	h.logger.Info("Subscription upgraded",
		slog.String("user_id", req.UserID),
		slog.Int("restores_requested", requested),
	)

	c.JSON(http.StatusOK, dto.UpgradeSubscriptionResponse{
		UserID:            req.UserID,
		UserRole:          jobs.RolePremiumUser,
		RestoresRequested: requested,
	})
}
