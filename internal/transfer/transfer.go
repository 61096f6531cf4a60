package transfer

import "github.com/golang-jwt/jwt/v5"

type CustomClaims struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

type PostCreation struct {
	Provider    string `json:"provider"`
	Caption     string `json:"caption"`
	MediaURL    string `json:"media_url"`
	CampaignID  string `json:"campaign_id"`
	ScheduledAt string `json:"scheduled_at"`
	Status      string `json:"status"`
}

type ApprovalRequest struct {
	PostID   string `json:"post_id"`
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

type RescheduleRequest struct {
	PostID      string `json:"post_id"`
	ScheduledAt string `json:"scheduled_at"`
}

// ConnectionInfo is the redacted projection of a connection for API
// responses; tokens never leave the server.
type ConnectionInfo struct {
	ID        string `json:"id"`
	Provider  string `json:"provider"`
	PageID    string `json:"page_id,omitempty"`
	IGUserID  string `json:"ig_user_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}
