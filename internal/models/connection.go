package models

import "time"

// Connection is a destination account credential owned by a tenant and
// scoped to one provider. Tokens are stored encrypted at rest; the
// connection directory decrypts them on read.
type Connection struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	OrgID        string    `db:"org_id" json:"org_id,omitempty"`
	Provider     Provider  `db:"provider" json:"provider"`
	AccessToken  string    `db:"access_token" json:"-"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	PageID       string    `db:"page_id" json:"page_id,omitempty"`
	PageToken    string    `db:"page_token" json:"-"`
	IGUserID     string    `db:"ig_user_id" json:"ig_user_id,omitempty"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
