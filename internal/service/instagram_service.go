package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/transfer"
)

const (
	instagramAuthorizeURL = "https://www.instagram.com/oauth/authorize"
	instagramScopes       = "instagram_business_basic,instagram_business_content_publish"
)

type instagramService struct {
	cfg   config.Config
	graph *resty.Client
	oauth *resty.Client
}

func NewInstagramService(cfg config.Config, client *http.Client) PlatformService {
	return &instagramService{
		cfg:   cfg,
		graph: newGraphClient(client, cfg.Endpoints.InstagramGraph),
		oauth: newGraphClient(client, cfg.Endpoints.InstagramOAuth),
	}
}

func (ig *instagramService) Platform() models.Platform {
	return models.PlatformInstagram
}

func (ig *instagramService) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", ig.cfg.InstagramClientID)
	q.Set("redirect_uri", ig.cfg.InstagramRedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", instagramScopes)
	q.Set("state", state)
	return instagramAuthorizeURL + "?" + q.Encode()
}

func (ig *instagramService) Exchange(ctx context.Context, code string) (*TokenGrant, *Account, error) {
	if code == "" {
		return nil, nil, fmt.Errorf("%w: authorization code is empty", ErrInvalidInput)
	}

	var short transfer.GraphTokenResponse
	var apiErr transfer.GraphErrorResponse
	resp, err := ig.oauth.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     ig.cfg.InstagramClientID,
			"client_secret": ig.cfg.InstagramClientSecret,
			"grant_type":    "authorization_code",
			"redirect_uri":  ig.cfg.InstagramRedirectURI,
			"code":          code,
		}).
		SetResult(&short).
		SetError(&apiErr).
		Post("/oauth/access_token")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get short-lived token: %w", err)
	}
	if resp.IsError() {
		return nil, nil, fmt.Errorf("failed to get short-lived token: %s", graphMessage(resp, &apiErr))
	}

	var long transfer.GraphTokenResponse
	resp, err = ig.graph.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":    "ig_exchange_token",
			"client_secret": ig.cfg.InstagramClientSecret,
			"access_token":  short.AccessToken,
		}).
		SetResult(&long).
		SetError(&apiErr).
		Get("/access_token")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get long-lived token: %w", err)
	}
	if resp.IsError() {
		return nil, nil, fmt.Errorf("failed to get long-lived token: %s", graphMessage(resp, &apiErr))
	}

	var me transfer.InstagramUserInfo
	resp, err = ig.graph.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fields":       "user_id,username,name",
			"access_token": long.AccessToken,
		}).
		SetResult(&me).
		SetError(&apiErr).
		Get("/" + graphVersion + "/me")
	if err != nil {
		return nil, nil, fmt.Errorf("error fetching instagram user: %w", err)
	}
	if resp.IsError() {
		return nil, nil, fmt.Errorf("error fetching instagram user: %s", graphMessage(resp, &apiErr))
	}

	userID := me.UserID
	if userID == "" && short.UserID != 0 {
		userID = strconv.FormatInt(short.UserID, 10)
	}

	return &TokenGrant{
		AccessToken: long.AccessToken,
		ExpiresAt:   GetExpiresAt(long.ExpiresIn),
	}, &Account{ProviderUserID: userID, Name: me.Username}, nil
}

// Refresh renews a long-lived token. Instagram refreshes with the access
// token itself; there is no separate refresh token.
func (ig *instagramService) Refresh(ctx context.Context, creds Credentials) (*TokenGrant, error) {
	var result transfer.GraphTokenResponse
	var apiErr transfer.GraphErrorResponse

	resp, err := ig.graph.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":   "ig_refresh_token",
			"access_token": creds.AccessToken,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Get("/refresh_access_token")
	if err != nil {
		return nil, transportRefreshError(models.PlatformInstagram, err)
	}
	if resp.IsError() {
		return nil, graphRefreshError(models.PlatformInstagram, resp, &apiErr)
	}
	if result.AccessToken == "" {
		return nil, &TokenRefreshError{Platform: models.PlatformInstagram, StatusCode: resp.StatusCode(), Message: "refresh returned no access token"}
	}

	return &TokenGrant{
		AccessToken: result.AccessToken,
		ExpiresAt:   GetExpiresAt(result.ExpiresIn),
	}, nil
}

// Publish creates a media container, waits for Instagram to finish
// processing it and publishes it.
func (ig *instagramService) Publish(ctx context.Context, accessToken string, req *PublishRequest) (string, error) {
	if req.AccountID == "" {
		return "", &PublishError{Platform: models.PlatformInstagram, Message: "instagram account id is missing"}
	}

	form := map[string]string{
		"caption":      captionOf(req),
		"access_token": accessToken,
	}
	if req.MediaKind == models.MediaKindVideo {
		form["media_type"] = "REELS"
		form["video_url"] = req.MediaURL
	} else {
		form["image_url"] = req.MediaURL
	}

	containerID, err := ig.post(ctx, "/"+graphVersion+"/"+req.AccountID+"/media", form)
	if err != nil {
		return "", err
	}

	if err := ig.waitForContainer(ctx, accessToken, containerID); err != nil {
		return "", err
	}

	mediaID, err := ig.post(ctx, "/"+graphVersion+"/"+req.AccountID+"/media_publish", map[string]string{
		"creation_id":  containerID,
		"access_token": accessToken,
	})
	if err != nil {
		return "", err
	}

	slog.Info("instagram media published", "post_id", req.PostID, "media_id", mediaID)
	return mediaID, nil
}

func (ig *instagramService) post(ctx context.Context, path string, form map[string]string) (string, error) {
	var result transfer.GraphIDResponse
	var apiErr transfer.GraphErrorResponse

	resp, err := ig.graph.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return "", transportPublishError(models.PlatformInstagram, err)
	}
	if resp.IsError() {
		return "", graphPublishError(models.PlatformInstagram, resp, &apiErr)
	}
	if result.ID == "" {
		return "", &PublishError{Platform: models.PlatformInstagram, StatusCode: resp.StatusCode(), Message: emptyIDMessage}
	}
	return result.ID, nil
}

var errContainerNotReady = errors.New("media container did not finish processing")

func (ig *instagramService) waitForContainer(ctx context.Context, accessToken, containerID string) error {
	polls := ig.cfg.Dispatch.InstagramPolls
	if polls <= 0 {
		polls = 1
	}
	interval := ig.cfg.Dispatch.InstagramPoll
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for i := 0; i < polls; i++ {
		var status transfer.InstagramContainerStatus
		var apiErr transfer.GraphErrorResponse

		resp, err := ig.graph.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"fields":       "status_code,status",
				"access_token": accessToken,
			}).
			SetResult(&status).
			SetError(&apiErr).
			Get("/" + graphVersion + "/" + containerID)
		if err != nil {
			return transportPublishError(models.PlatformInstagram, err)
		}
		if resp.IsError() {
			return graphPublishError(models.PlatformInstagram, resp, &apiErr)
		}

		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			msg := status.Status
			if msg == "" {
				msg = "media container " + status.StatusCode
			}
			return &PublishError{Platform: models.PlatformInstagram, StatusCode: resp.StatusCode(), Message: msg}
		}

		if i < polls-1 {
			if err := sleepCtx(ctx, interval); err != nil {
				return transportPublishError(models.PlatformInstagram, err)
			}
		}
	}

	return &PublishError{Platform: models.PlatformInstagram, Message: errContainerNotReady.Error(), Err: errContainerNotReady}
}
