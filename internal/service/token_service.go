package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/metrics"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/pkg/utils"
	"golang.org/x/sync/singleflight"
)

// TokenService hands out usable access tokens, refreshing them when they are
// missing an expiry or close to it.
type TokenService interface {
	AccessToken(ctx context.Context, conn *models.Connection) (string, error)
	Refresh(ctx context.Context, conn *models.Connection) (string, error)
	Forget(connectionID int64)
}

type cachedToken struct {
	token      string
	validUntil time.Time
}

type tokenService struct {
	secretKey   []byte
	margin      time.Duration
	connections repository.ConnectionRepository
	registry    *Registry

	group singleflight.Group
	mu    sync.Mutex
	cache map[int64]cachedToken
	now   func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*tokenService)

// WithClock sets the time source expiries are compared against.
func WithClock(now func() time.Time) TokenOption {
	return func(s *tokenService) {
		s.now = now
	}
}

func NewTokenService(cfg config.Config, connections repository.ConnectionRepository, registry *Registry, opts ...TokenOption) TokenService {
	margin := cfg.Dispatch.RefreshMargin
	if margin <= 0 {
		margin = 300 * time.Second
	}
	s := &tokenService{
		secretKey:   []byte(cfg.SecretKey),
		margin:      margin,
		connections: connections,
		registry:    registry,
		cache:       make(map[int64]cachedToken),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *tokenService) AccessToken(ctx context.Context, conn *models.Connection) (string, error) {
	if conn.NeedsReauth() {
		return "", &TokenRefreshError{Platform: conn.Platform, Message: "connection requires re-authorization", Revoked: true}
	}

	if token, ok := s.cached(conn.ID); ok {
		return token, nil
	}

	if conn.ExpiresAt != nil && conn.ExpiresAt.After(s.now().Add(s.margin)) {
		token, err := utils.Decrypt(conn.AccessToken, s.secretKey)
		if err != nil {
			return "", fmt.Errorf("decrypt %s access token: %w", conn.Platform, err)
		}
		return token, nil
	}

	return s.refreshOnce(ctx, conn)
}

// Refresh renews the token regardless of its expiry.
func (s *tokenService) Refresh(ctx context.Context, conn *models.Connection) (string, error) {
	if conn.NeedsReauth() {
		return "", &TokenRefreshError{Platform: conn.Platform, Message: "connection requires re-authorization", Revoked: true}
	}
	s.Forget(conn.ID)
	return s.refreshOnce(ctx, conn)
}

func (s *tokenService) Forget(connectionID int64) {
	s.mu.Lock()
	delete(s.cache, connectionID)
	s.mu.Unlock()
}

func (s *tokenService) cached(connectionID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cache[connectionID]
	if !ok {
		return "", false
	}
	if !s.now().Before(c.validUntil) {
		delete(s.cache, connectionID)
		return "", false
	}
	return c.token, true
}

// refreshOnce collapses concurrent refreshes of one connection into a single
// provider call.
func (s *tokenService) refreshOnce(ctx context.Context, conn *models.Connection) (string, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(conn.ID, 10), func() (any, error) {
		if token, ok := s.cached(conn.ID); ok {
			return token, nil
		}
		return s.refresh(ctx, conn)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *tokenService) refresh(ctx context.Context, conn *models.Connection) (string, error) {
	provider, err := s.registry.Provider(conn.Platform)
	if err != nil {
		return "", err
	}

	accessToken, err := utils.Decrypt(conn.AccessToken, s.secretKey)
	if err != nil {
		return "", fmt.Errorf("decrypt %s access token: %w", conn.Platform, err)
	}
	refreshToken, err := utils.DecryptOptional(conn.RefreshToken, s.secretKey)
	if err != nil {
		return "", fmt.Errorf("decrypt %s refresh token: %w", conn.Platform, err)
	}

	grant, err := provider.Refresh(ctx, Credentials{
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ProviderUserID: conn.ProviderUserID,
	})
	if err != nil {
		metrics.IncTokenRefresh(conn.Platform.String(), "failed")
		s.handleRefreshFailure(ctx, conn, err)
		return "", err
	}
	metrics.IncTokenRefresh(conn.Platform.String(), "ok")

	if err := s.persist(ctx, conn, grant); err != nil {
		// The new token is valid whether or not it was stored; a rotated
		// refresh token is lost until the next successful refresh.
		slog.Error("failed to store refreshed token",
			"connection_id", conn.ID,
			"platform", conn.Platform,
			"error", err,
		)
	}

	validUntil := s.now().Add(s.margin)
	if grant.ExpiresAt != nil {
		validUntil = grant.ExpiresAt.Add(-s.margin)
	}
	s.mu.Lock()
	s.cache[conn.ID] = cachedToken{token: grant.AccessToken, validUntil: validUntil}
	s.mu.Unlock()

	slog.Info("token refreshed", "connection_id", conn.ID, "platform", conn.Platform)
	return grant.AccessToken, nil
}

func (s *tokenService) persist(ctx context.Context, conn *models.Connection, grant *TokenGrant) error {
	encAccess, err := utils.Encrypt([]byte(grant.AccessToken), s.secretKey)
	if err != nil {
		return err
	}
	encRefresh, err := utils.EncryptOptional(grant.RefreshToken, s.secretKey)
	if err != nil {
		return err
	}

	if err := s.connections.UpdateTokens(ctx, conn.ID, encAccess, encRefresh, grant.ExpiresAt); err != nil {
		return err
	}

	conn.AccessToken = encAccess
	if encRefresh != nil {
		conn.RefreshToken = encRefresh
	}
	conn.ExpiresAt = grant.ExpiresAt
	return nil
}

func (s *tokenService) handleRefreshFailure(ctx context.Context, conn *models.Connection, err error) {
	var tre *TokenRefreshError
	if !errors.As(err, &tre) || !tre.Revoked {
		slog.Warn("token refresh failed", "connection_id", conn.ID, "platform", conn.Platform, "error", err)
		return
	}

	slog.Warn("connection revoked, marking for re-authorization",
		"connection_id", conn.ID,
		"platform", conn.Platform,
		"error", err,
	)
	if markErr := s.connections.MarkReauth(ctx, conn.ID); markErr != nil {
		slog.Error("failed to mark connection for re-authorization", "connection_id", conn.ID, "error", markErr)
		return
	}
	conn.Status = models.ConnectionStatusReauthRequired
}
