package models

import "time"

const (
	ConnectionStatusActive         = "active"
	ConnectionStatusReauthRequired = "reauth_required"
)

// Connection is the OAuth credential set for one platform within one workspace.
// Tokens are stored encrypted.
type Connection struct {
	ID             int64      `db:"id" json:"id"`
	WorkspaceID    int64      `db:"workspace_id" json:"workspace_id"`
	Platform       Platform   `db:"platform" json:"platform"`
	AccessToken    string     `db:"access_token" json:"-"`
	RefreshToken   *string    `db:"refresh_token" json:"-"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expires_at"`
	ProviderUserID string     `db:"provider_user_id" json:"provider_user_id"`
	AccountName    string     `db:"account_name" json:"account_name"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (c *Connection) NeedsReauth() bool {
	return c.Status == ConnectionStatusReauthRequired
}
