package service

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
)

// Credentials are the decrypted tokens of one connection.
type Credentials struct {
	AccessToken    string
	RefreshToken   string
	ProviderUserID string
}

// TokenGrant is what a platform hands back from a refresh or a code
// exchange. An empty RefreshToken means the stored one stays valid.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

type PublishRequest struct {
	PostID      int64
	Title       string
	Description string
	MediaURL    string
	MediaKind   models.MediaKind
	// AccountID is the platform-side account to publish as: Instagram user
	// id, Facebook page id. Unused by YouTube and TikTok.
	AccountID string
}

type Account struct {
	ProviderUserID string
	Name           string
}

// Provider is the capability every publishing platform implements.
type Provider interface {
	Platform() models.Platform
	Refresh(ctx context.Context, creds Credentials) (*TokenGrant, error)
	Publish(ctx context.Context, accessToken string, req *PublishRequest) (string, error)
}

// Connector performs the OAuth connect flow for a platform.
type Connector interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*TokenGrant, *Account, error)
}

type PlatformService interface {
	Provider
	Connector
}

// Registry maps every platform to its provider. It can only be built when
// all platforms are covered.
type Registry struct {
	providers map[models.Platform]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[models.Platform]Provider, len(providers))}
	for _, p := range providers {
		if _, dup := r.providers[p.Platform()]; dup {
			return nil, fmt.Errorf("duplicate provider for %s", p.Platform())
		}
		r.providers[p.Platform()] = p
	}
	for _, platform := range models.AllPlatforms {
		if _, ok := r.providers[platform]; !ok {
			return nil, fmt.Errorf("no provider registered for %s", platform)
		}
	}
	return r, nil
}

func (r *Registry) Provider(platform models.Platform) (Provider, error) {
	p, ok := r.providers[platform]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %s", platform)
	}
	return p, nil
}

func (r *Registry) Connector(platform models.Platform) (Connector, error) {
	p, err := r.Provider(platform)
	if err != nil {
		return nil, err
	}
	c, ok := p.(Connector)
	if !ok {
		return nil, fmt.Errorf("%s does not support connecting accounts", platform)
	}
	return c, nil
}
