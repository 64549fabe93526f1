package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/pkg/utils"
)

const oauthStateTTL = 10 * time.Minute

type ConnectionService interface {
	AuthURL(ctx context.Context, workspaceID int64, platform models.Platform) (string, error)
	Connect(ctx context.Context, platform models.Platform, code, state string) (*models.Connection, error)
	List(ctx context.Context, workspaceID int64) ([]*models.Connection, error)
	Disconnect(ctx context.Context, workspaceID int64, platform models.Platform) error
}

type connectionService struct {
	cfg         config.Config
	connections repository.ConnectionRepository
	registry    *Registry
	tokens      TokenService
}

func NewConnectionService(
	cfg config.Config,
	connections repository.ConnectionRepository,
	registry *Registry,
	tokens TokenService) ConnectionService {
	return &connectionService{
		cfg:         cfg,
		connections: connections,
		registry:    registry,
		tokens:      tokens,
	}
}

func oauthScope(platform models.Platform) string {
	return "oauth:" + platform.String()
}

// AuthURL returns the platform consent page. The state parameter is a short
// lived token binding the callback to the workspace and platform.
func (s *connectionService) AuthURL(ctx context.Context, workspaceID int64, platform models.Platform) (string, error) {
	if workspaceID == 0 {
		return "", fmt.Errorf("%w: workspace is not valid", ErrInvalidInput)
	}

	connector, err := s.registry.Connector(platform)
	if err != nil {
		return "", err
	}

	state, err := utils.GenerateToken(s.cfg.SecretKey, strconv.FormatInt(workspaceID, 10), oauthScope(platform), oauthStateTTL)
	if err != nil {
		return "", err
	}
	return connector.AuthURL(state), nil
}

// Connect finishes the OAuth flow and stores the credentials, replacing any
// previous connection of the workspace to that platform.
func (s *connectionService) Connect(ctx context.Context, platform models.Platform, code, state string) (*models.Connection, error) {
	claims, err := utils.ValidateToken(s.cfg.SecretKey, state)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid oauth state", ErrInvalidInput)
	}
	if claims.Scope != oauthScope(platform) {
		return nil, fmt.Errorf("%w: oauth state was issued for another platform", ErrInvalidInput)
	}
	workspaceID, err := claims.Workspace()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid oauth state", ErrInvalidInput)
	}

	connector, err := s.registry.Connector(platform)
	if err != nil {
		return nil, err
	}

	grant, account, err := connector.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	encAccess, err := utils.Encrypt([]byte(grant.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}
	encRefresh, err := utils.EncryptOptional(grant.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	conn := &models.Connection{
		WorkspaceID:    workspaceID,
		Platform:       platform,
		AccessToken:    encAccess,
		RefreshToken:   encRefresh,
		ExpiresAt:      grant.ExpiresAt,
		ProviderUserID: account.ProviderUserID,
		AccountName:    account.Name,
		Status:         models.ConnectionStatusActive,
	}

	id, err := s.connections.Upsert(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("error saving connection: %w", err)
	}
	conn.ID = id
	s.tokens.Forget(id)

	slog.Info("platform connected", "workspace_id", workspaceID, "platform", platform, "account", account.Name)
	return conn, nil
}

func (s *connectionService) List(ctx context.Context, workspaceID int64) ([]*models.Connection, error) {
	if workspaceID == 0 {
		err := fmt.Errorf("%w: workspace is not valid", ErrInvalidInput)
		slog.Info(err.Error())
		return nil, err
	}

	connections, err := s.connections.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("error getting connections: %w", err)
	}
	return connections, nil
}

func (s *connectionService) Disconnect(ctx context.Context, workspaceID int64, platform models.Platform) error {
	conn, err := s.connections.Get(ctx, workspaceID, platform)
	if err != nil {
		return err
	}
	if conn == nil {
		return ErrNotConnected
	}

	if err := s.connections.Remove(ctx, workspaceID, platform); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotConnected
		}
		return fmt.Errorf("error removing connection: %w", err)
	}
	s.tokens.Forget(conn.ID)
	return nil
}
