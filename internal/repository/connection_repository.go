package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
)

type ConnectionRepository interface {
	Get(ctx context.Context, workspaceID int64, platform models.Platform) (*models.Connection, error)
	GetByID(ctx context.Context, id int64) (*models.Connection, error)
	ListByWorkspace(ctx context.Context, workspaceID int64) ([]*models.Connection, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.Connection, error)
	Upsert(ctx context.Context, c *models.Connection) (int64, error)
	UpdateTokens(ctx context.Context, id int64, accessToken string, refreshToken *string, expiresAt *time.Time) error
	MarkReauth(ctx context.Context, id int64) error
	Remove(ctx context.Context, workspaceID int64, platform models.Platform) error
}

type connectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `id, workspace_id, platform, access_token, refresh_token, expires_at,
	provider_user_id, account_name, status, created_at, updated_at`

func scanConnection(row rowScanner) (*models.Connection, error) {
	var (
		c         models.Connection
		refresh   sql.NullString
		expiresAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.Platform, &c.AccessToken, &refresh, &expiresAt,
		&c.ProviderUserID, &c.AccountName, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if refresh.Valid {
		s := refresh.String
		c.RefreshToken = &s
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

func (r *connectionRepository) Get(ctx context.Context, workspaceID int64, platform models.Platform) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE workspace_id = $1 AND platform = $2`
	c, err := scanConnection(r.db.QueryRowContext(ctx, query, workspaceID, string(platform)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return c, nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id int64) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	c, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return c, nil
}

func (r *connectionRepository) ListByWorkspace(ctx context.Context, workspaceID int64) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE workspace_id = $1 ORDER BY platform`
	return r.list(ctx, query, workspaceID)
}

// ListExpiring returns active connections whose access token expires before the given time.
func (r *connectionRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at`
	return r.list(ctx, query, models.ConnectionStatusActive, before.UTC())
}

func (r *connectionRepository) list(ctx context.Context, query string, args ...any) ([]*models.Connection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		connections = append(connections, c)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return connections, nil
}

// Upsert replaces every credential of an existing (workspace, platform)
// connection and reactivates it.
func (r *connectionRepository) Upsert(ctx context.Context, c *models.Connection) (int64, error) {
	query := `
		INSERT INTO connections (
			workspace_id,
			platform,
			access_token,
			refresh_token,
			expires_at,
			provider_user_id,
			account_name,
			status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (workspace_id, platform) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			provider_user_id = EXCLUDED.provider_user_id,
			account_name = EXCLUDED.account_name,
			status = EXCLUDED.status,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	var expiresAt any
	if c.ExpiresAt != nil {
		expiresAt = c.ExpiresAt.UTC()
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		c.WorkspaceID,
		string(c.Platform),
		c.AccessToken,
		c.RefreshToken,
		expiresAt,
		c.ProviderUserID,
		c.AccountName,
		models.ConnectionStatusActive,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

// UpdateTokens stores a refreshed credential. A nil refresh token keeps the stored one.
func (r *connectionRepository) UpdateTokens(ctx context.Context, id int64, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	query := `
		UPDATE connections
		SET
			access_token = $2,
			refresh_token = COALESCE($3, refresh_token),
			expires_at = $4,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	var expires any
	if expiresAt != nil {
		expires = expiresAt.UTC()
	}

	result, err := r.db.ExecContext(ctx, query, id, accessToken, refreshToken, expires)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectOne(result)
}

func (r *connectionRepository) MarkReauth(ctx context.Context, id int64) error {
	query := `UPDATE connections SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, models.ConnectionStatusReauthRequired)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectOne(result)
}

func (r *connectionRepository) Remove(ctx context.Context, workspaceID int64, platform models.Platform) error {
	query := `DELETE FROM connections WHERE workspace_id = $1 AND platform = $2`
	result, err := r.db.ExecContext(ctx, query, workspaceID, string(platform))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectOne(result)
}

func expectOne(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
