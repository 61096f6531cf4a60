package models

import "time"

type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "success"
	AttemptRetry   AttemptStatus = "retry"
	AttemptFailed  AttemptStatus = "failed"
)

// AttemptLogEntry is an immutable record of one publish attempt. Entries are
// appended once per dispatch attempt and never mutated.
type AttemptLogEntry struct {
	ID             string        `db:"id" json:"id"`
	ScheduledID    string        `db:"scheduled_id" json:"scheduled_id"`
	UserID         string        `db:"user_id" json:"user_id"`
	OrgID          string        `db:"org_id" json:"org_id,omitempty"`
	Status         AttemptStatus `db:"status" json:"status"`
	Attempt        int           `db:"attempt" json:"attempt"`
	ExternalID     string        `db:"external_id" json:"external_id,omitempty"`
	Error          string        `db:"error_message" json:"error,omitempty"`
	IdempotencyKey string        `db:"idempotency_key" json:"idempotency_key"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}
