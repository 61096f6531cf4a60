package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/pkg/utils"
)

const connectionColumns = `id, user_id, org_id, provider, access_token, refresh_token,
		page_id, page_token, ig_user_id, expires_at, created_at, updated_at`

type postgresConnectionStore struct {
	db        *sql.DB
	secretKey []byte
}

// NewPostgresConnectionStore returns a ConnectionDirectory backed by
// Postgres. Tokens are AES-GCM encrypted at rest when a secret key is
// configured; with an empty key they pass through unchanged (local dev).
func NewPostgresConnectionStore(db *sql.DB, secretKey string) ConnectionDirectory {
	return &postgresConnectionStore{db: db, secretKey: []byte(secretKey)}
}

func (r *postgresConnectionStore) decrypt(value string) (string, error) {
	if len(r.secretKey) == 0 || value == "" {
		return value, nil
	}
	return utils.Decrypt(value, r.secretKey)
}

func (r *postgresConnectionStore) encrypt(value string) (string, error) {
	if len(r.secretKey) == 0 || value == "" {
		return value, nil
	}
	return utils.Encrypt([]byte(value), r.secretKey)
}

func (r *postgresConnectionStore) scanConnection(row rowScanner) (*models.Connection, error) {
	var c models.Connection
	var orgID, accessToken, refreshToken, pageID, pageToken, igUserID sql.NullString
	var expiresAt sql.NullTime

	err := row.Scan(&c.ID, &c.UserID, &orgID, &c.Provider, &accessToken, &refreshToken,
		&pageID, &pageToken, &igUserID, &expiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.OrgID = orgID.String
	c.PageID = pageID.String
	c.IGUserID = igUserID.String
	if expiresAt.Valid {
		c.ExpiresAt = expiresAt.Time
	}

	if c.AccessToken, err = r.decrypt(accessToken.String); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if c.RefreshToken, err = r.decrypt(refreshToken.String); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if c.PageToken, err = r.decrypt(pageToken.String); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &c, nil
}

func (r *postgresConnectionStore) List(ctx context.Context, t Tenant) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + `
		FROM connections
		WHERE user_id = $1 AND ($2 = '' OR org_id = $2)
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, t.UserID, t.OrgID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		conn, err := r.scanConnection(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		connections = append(connections, conn)
	}
	return connections, rows.Err()
}

func (r *postgresConnectionStore) ListExpiring(ctx context.Context, before time.Time) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + `
		FROM connections
		WHERE refresh_token IS NOT NULL AND (expires_at IS NULL OR expires_at <= $1)`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		conn, err := r.scanConnection(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		connections = append(connections, conn)
	}
	return connections, rows.Err()
}

func (r *postgresConnectionStore) SetToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	encryptedAccess, err := r.encrypt(accessToken)
	if err != nil {
		return err
	}
	encryptedRefresh, err := r.encrypt(refreshToken)
	if err != nil {
		return err
	}

	query := `
		UPDATE connections
		SET access_token = COALESCE(NULLIF($2, ''), access_token),
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			expires_at = $4,
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, encryptedAccess, encryptedRefresh, expiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
