package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
)

// staleLockError is the explanatory last_error written by the stale-lock
// sweep so the recovery is visible in the UI alongside ordinary failures.
func staleLockError(timeout time.Duration) string {
	return fmt.Sprintf("Recovered from stale processing lock after %ds", int(timeout.Seconds()))
}

// ErrNotFound is returned when a record does not exist or is outside the
// caller's tenant scope.
var ErrNotFound = errors.New("record not found")

// Tenant scopes ownership of posts and connections. OrgID is empty in
// single-tenant mode.
type Tenant struct {
	UserID string
	OrgID  string
}

// PostStore is the durable record of scheduled posts. Claim is the sole
// mechanism enforcing at-most-one concurrent publish attempt per post: it
// must transition pending/retry to processing atomically and report a lost
// race as (nil, nil), never as an error.
type PostStore interface {
	Create(ctx context.Context, post *models.ScheduledPost) error
	GetByID(ctx context.Context, id string, t Tenant) (*models.ScheduledPost, error)
	ListByTenant(ctx context.Context, t Tenant) ([]*models.ScheduledPost, error)

	// ListDue returns posts with status pending or retry and scheduled_at <=
	// now, across all tenants, ordered by scheduled_at ascending, bounded by
	// limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)

	// Claim atomically transitions a pending/retry post to processing,
	// stamping a fresh lock token and processing_started_at. Returns
	// (nil, nil) when another claimer won or the post is no longer claimable.
	Claim(ctx context.Context, id string) (*models.ScheduledPost, error)

	// MarkPosted records a successful publish. Idempotent.
	MarkPosted(ctx context.Context, id, externalID, idempotencyKey string) error

	// MarkFailed increments retry_count, records the error, clears the lock,
	// and settles status on retry or terminal failed depending on the attempt
	// ceiling. Returns the updated count.
	MarkFailed(ctx context.Context, id, errorMessage string) (int, error)

	// Reschedule moves the post to a new time, clearing the lock. Status
	// becomes pending when clearError is set (which also drops last_error),
	// retry otherwise.
	Reschedule(ctx context.Context, id string, t Tenant, when time.Time, clearError bool) (*models.ScheduledPost, error)

	// UpdateApproval applies a review decision. Approved posts become
	// pending; rejected posts become rejected.
	UpdateApproval(ctx context.Context, id string, t Tenant, approval models.ApprovalStatus, reviewer, notes string) (*models.ScheduledPost, error)

	// RecoverStaleProcessing force-transitions processing posts whose claim
	// is older than timeout back to retry, across all tenants. Returns the
	// number of recovered posts.
	RecoverStaleProcessing(ctx context.Context, timeout time.Duration) (int, error)
}

// ConnectionDirectory resolves which authenticated destination accounts a
// tenant can publish through. Connection creation happens in the OAuth
// callback flow, outside this package.
type ConnectionDirectory interface {
	List(ctx context.Context, t Tenant) ([]*models.Connection, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.Connection, error)
	SetToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
}

// AttemptLog is the append-only record of publish attempts.
type AttemptLog interface {
	Append(ctx context.Context, entry *models.AttemptLogEntry) error
	ListByScheduledID(ctx context.Context, scheduledID string, t Tenant) ([]*models.AttemptLogEntry, error)
}
