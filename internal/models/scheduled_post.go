package models

import "time"

type Status string

const (
	StatusDraft      Status = "draft"
	StatusReview     Status = "review"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusRetry      Status = "retry"
	StatusPosted     Status = "posted"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
)

type ApprovalStatus string

const (
	ApprovalDraft    ApprovalStatus = "draft"
	ApprovalReview   ApprovalStatus = "review"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ScheduledPost is one unit of publish work. A post in processing always has
// LockToken and ProcessingStartedAt set; exactly one claim may hold a post at
// a time.
type ScheduledPost struct {
	ID         string   `db:"id" json:"id"`
	UserID     string   `db:"user_id" json:"user_id"`
	OrgID      string   `db:"org_id" json:"org_id,omitempty"`
	Provider   Provider `db:"provider" json:"provider"`
	Caption    string   `db:"caption" json:"caption"`
	MediaURL   string   `db:"media_url" json:"media_url,omitempty"`
	CampaignID string   `db:"campaign_id" json:"campaign_id,omitempty"`

	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Status      Status    `db:"status" json:"status"`

	ApprovalStatus ApprovalStatus `db:"approval_status" json:"approval_status"`
	ApprovedBy     string         `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt     time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	ReviewNotes    string         `db:"review_notes" json:"review_notes,omitempty"`

	RetryCount          int       `db:"retry_count" json:"retry_count"`
	LastError           string    `db:"last_error" json:"last_error,omitempty"`
	LockToken           string    `db:"lock_token" json:"-"`
	ProcessingStartedAt time.Time `db:"processing_started_at" json:"-"`
	LastIdempotencyKey  string    `db:"last_idempotency_key" json:"-"`
	ExternalID          string    `db:"external_id" json:"external_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Claimable reports whether the dispatch engine may take the post.
func (p *ScheduledPost) Claimable() bool {
	return p.Status == StatusPending || p.Status == StatusRetry
}
