package dto

// UpgradeSubscriptionRequest is the POST body for a subscription upgrade.
type UpgradeSubscriptionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// UpgradeSubscriptionResponse reports the new role and how many archived
// results had a restore requested.
type UpgradeSubscriptionResponse struct {
	UserID            string `json:"user_id"`
	UserRole          string `json:"user_role"`
	RestoresRequested int    `json:"restores_requested"`
}
