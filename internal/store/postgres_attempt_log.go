package store

import (
	"context"
	"database/sql"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/postpilot-app/postpilot/internal/models"
)

type postgresAttemptLog struct {
	db *sql.DB
}

func NewPostgresAttemptLog(db *sql.DB) AttemptLog {
	return &postgresAttemptLog{db: db}
}

func (r *postgresAttemptLog) Append(ctx context.Context, entry *models.AttemptLogEntry) error {
	if entry.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return err
		}
		entry.ID = id
	}

	query := `
		INSERT INTO scheduled_attempts (
			id, scheduled_id, user_id, org_id, status, attempt,
			external_id, error_message, idempotency_key
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.ScheduledID, entry.UserID,
		nullString(entry.OrgID), entry.Status, entry.Attempt,
		nullString(entry.ExternalID), nullString(entry.Error), entry.IdempotencyKey)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postgresAttemptLog) ListByScheduledID(ctx context.Context, scheduledID string, t Tenant) ([]*models.AttemptLogEntry, error) {
	query := `
		SELECT id, scheduled_id, user_id, org_id, status, attempt,
			external_id, error_message, idempotency_key, created_at
		FROM scheduled_attempts
		WHERE scheduled_id = $1 AND user_id = $2 AND ($3 = '' OR org_id = $3)
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, scheduledID, t.UserID, t.OrgID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AttemptLogEntry
	for rows.Next() {
		var e models.AttemptLogEntry
		var orgID, externalID, errorMessage sql.NullString
		err := rows.Scan(&e.ID, &e.ScheduledID, &e.UserID, &orgID, &e.Status, &e.Attempt,
			&externalID, &errorMessage, &e.IdempotencyKey, &e.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		e.OrgID = orgID.String
		e.ExternalID = externalID.String
		e.Error = errorMessage.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
