package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/postpilot-app/postpilot/internal/models"
)

const postColumns = `id, user_id, org_id, provider, caption, media_url, campaign_id,
		scheduled_at, status, approval_status, approved_by, approved_at, review_notes,
		retry_count, last_error, lock_token, processing_started_at, last_idempotency_key,
		external_id, created_at, updated_at`

type postgresPostStore struct {
	db          *sql.DB
	maxAttempts int
}

// NewPostgresPostStore returns a PostStore backed by Postgres. maxAttempts is
// the retry ceiling consulted by MarkFailed when settling terminal status.
func NewPostgresPostStore(db *sql.DB, maxAttempts int) PostStore {
	return &postgresPostStore{db: db, maxAttempts: maxAttempts}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*models.ScheduledPost, error) {
	var p models.ScheduledPost
	var orgID, mediaURL, campaignID, approvedBy, reviewNotes sql.NullString
	var lastError, lockToken, idemKey, externalID sql.NullString
	var approvedAt, processingStartedAt sql.NullTime

	err := row.Scan(&p.ID, &p.UserID, &orgID, &p.Provider, &p.Caption, &mediaURL, &campaignID,
		&p.ScheduledAt, &p.Status, &p.ApprovalStatus, &approvedBy, &approvedAt, &reviewNotes,
		&p.RetryCount, &lastError, &lockToken, &processingStartedAt, &idemKey,
		&externalID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.OrgID = orgID.String
	p.MediaURL = mediaURL.String
	p.CampaignID = campaignID.String
	p.ApprovedBy = approvedBy.String
	p.ReviewNotes = reviewNotes.String
	p.LastError = lastError.String
	p.LockToken = lockToken.String
	p.LastIdempotencyKey = idemKey.String
	p.ExternalID = externalID.String
	if approvedAt.Valid {
		p.ApprovedAt = approvedAt.Time
	}
	if processingStartedAt.Valid {
		p.ProcessingStartedAt = processingStartedAt.Time
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *postgresPostStore) Create(ctx context.Context, post *models.ScheduledPost) error {
	if post.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return err
		}
		post.ID = id
	}

	query := `
		INSERT INTO scheduled_posts (
			id, user_id, org_id, provider, caption, media_url, campaign_id,
			scheduled_at, status, approval_status, retry_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0)
	`
	_, err := r.db.ExecContext(ctx, query, post.ID, post.UserID, nullString(post.OrgID),
		post.Provider, post.Caption, nullString(post.MediaURL), nullString(post.CampaignID),
		post.ScheduledAt, post.Status, post.ApprovalStatus)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postgresPostStore) GetByID(ctx context.Context, id string, t Tenant) (*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + `
		FROM scheduled_posts
		WHERE id = $1 AND user_id = $2 AND ($3 = '' OR org_id = $3)`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id, t.UserID, t.OrgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postgresPostStore) ListByTenant(ctx context.Context, t Tenant) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + `
		FROM scheduled_posts
		WHERE user_id = $1 AND ($2 = '' OR org_id = $2)
		ORDER BY scheduled_at DESC`

	rows, err := r.db.QueryContext(ctx, query, t.UserID, t.OrgID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postgresPostStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	limit = clampLimit(limit)

	query := `SELECT ` + postColumns + `
		FROM scheduled_posts
		WHERE status IN ('pending', 'retry') AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// Claim is a single conditional update: the transition to processing happens
// only if the post is still pending/retry, so concurrent claimers cannot both
// win. The loser sees zero rows and gets (nil, nil).
func (r *postgresPostStore) Claim(ctx context.Context, id string) (*models.ScheduledPost, error) {
	lockToken, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE scheduled_posts
		SET status = 'processing',
			lock_token = $2,
			processing_started_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'retry')
		RETURNING ` + postColumns

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id, lockToken))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postgresPostStore) MarkPosted(ctx context.Context, id, externalID, idempotencyKey string) error {
	query := `
		UPDATE scheduled_posts
		SET status = 'posted',
			external_id = $2,
			last_idempotency_key = $3,
			retry_count = 0,
			last_error = NULL,
			lock_token = NULL,
			processing_started_at = NULL,
			updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, externalID, nullString(idempotencyKey))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postgresPostStore) MarkFailed(ctx context.Context, id, errorMessage string) (int, error) {
	query := `
		UPDATE scheduled_posts
		SET retry_count = retry_count + 1,
			status = CASE WHEN retry_count + 1 >= $2 THEN 'failed' ELSE 'retry' END,
			last_error = $3,
			lock_token = NULL,
			processing_started_at = NULL,
			updated_at = NOW()
		WHERE id = $1
		RETURNING retry_count
	`
	var retryCount int
	err := r.db.QueryRowContext(ctx, query, id, r.maxAttempts, errorMessage).Scan(&retryCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		slog.Info(err.Error())
		return 0, err
	}
	return retryCount, nil
}

func (r *postgresPostStore) Reschedule(ctx context.Context, id string, t Tenant, when time.Time, clearError bool) (*models.ScheduledPost, error) {
	status := models.StatusRetry
	if clearError {
		status = models.StatusPending
	}

	query := `
		UPDATE scheduled_posts
		SET scheduled_at = $2,
			status = $3,
			lock_token = NULL,
			processing_started_at = NULL,
			last_error = CASE WHEN $4 THEN NULL ELSE last_error END,
			updated_at = NOW()
		WHERE id = $1 AND user_id = $5 AND ($6 = '' OR org_id = $6)
		RETURNING ` + postColumns

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id, when, status, clearError, t.UserID, t.OrgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postgresPostStore) UpdateApproval(ctx context.Context, id string, t Tenant, approval models.ApprovalStatus, reviewer, notes string) (*models.ScheduledPost, error) {
	status := models.StatusPending
	if approval == models.ApprovalRejected {
		status = models.StatusRejected
	}

	query := `
		UPDATE scheduled_posts
		SET approval_status = $2,
			approved_by = $3,
			approved_at = NOW(),
			review_notes = $4,
			status = $5,
			updated_at = NOW()
		WHERE id = $1 AND user_id = $6 AND ($7 = '' OR org_id = $7)
		RETURNING ` + postColumns

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id, approval, reviewer, nullString(notes), status, t.UserID, t.OrgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

// RecoverStaleProcessing is a global sweep regardless of tenant: stale locks
// can originate from any tenant's posts in the same shared queue.
func (r *postgresPostStore) RecoverStaleProcessing(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := time.Now().Add(-timeout)

	query := `
		UPDATE scheduled_posts
		SET status = 'retry',
			last_error = $1,
			lock_token = NULL,
			processing_started_at = NULL,
			updated_at = NOW()
		WHERE status = 'processing' AND processing_started_at <= $2
	`
	result, err := r.db.ExecContext(ctx, query, staleLockError(timeout), cutoff)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	recovered, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return int(recovered), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 500
	}
	if limit > 5000 {
		return 5000
	}
	return limit
}
