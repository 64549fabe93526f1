package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/go-resty/resty/v2"
	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/transfer"
)

const (
	tiktokAuthorizeURL = "https://www.tiktok.com/v2/auth/authorize/"
	tiktokScopes       = "user.info.basic,video.publish"
	tiktokPublicLevel  = "PUBLIC_TO_EVERYONE"
)

type tiktokService struct {
	cfg config.Config
	api *resty.Client
}

func NewTiktokService(cfg config.Config, client *http.Client) PlatformService {
	return &tiktokService{
		cfg: cfg,
		api: resty.NewWithClient(client).SetBaseURL(cfg.Endpoints.TiktokAPI),
	}
}

func (s *tiktokService) Platform() models.Platform {
	return models.PlatformTikTok
}

func (s *tiktokService) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_key", s.cfg.TiktokClientKey)
	q.Set("scope", tiktokScopes)
	q.Set("response_type", "code")
	q.Set("redirect_uri", s.cfg.TiktokRedirectURI)
	q.Set("state", state)
	return tiktokAuthorizeURL + "?" + q.Encode()
}

func (s *tiktokService) Exchange(ctx context.Context, code string) (*TokenGrant, *Account, error) {
	if code == "" {
		return nil, nil, fmt.Errorf("%w: authorization code is empty", ErrInvalidInput)
	}

	token, resp, err := s.token(ctx, map[string]string{
		"client_key":    s.cfg.TiktokClientKey,
		"client_secret": s.cfg.TiktokClientSecret,
		"code":          code,
		"grant_type":    "authorization_code",
		"redirect_uri":  s.cfg.TiktokRedirectURI,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.IsError() || token.Error != "" {
		return nil, nil, fmt.Errorf("tiktok token exchange failed: %s", tiktokTokenMessage(resp, token))
	}

	var user transfer.TiktokUserResponse
	resp, err = s.api.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetQueryParam("fields", "open_id,display_name,username").
		SetResult(&user).
		SetError(&user).
		Get("/v2/user/info/")
	if err != nil {
		return nil, nil, fmt.Errorf("error fetching tiktok user: %w", err)
	}
	if resp.IsError() || !user.Error.OK() {
		return nil, nil, fmt.Errorf("error fetching tiktok user: %s", user.Error.Message)
	}

	return &TokenGrant{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			ExpiresAt:    GetExpiresAt(int64(token.ExpiresIn)),
		}, &Account{
			ProviderUserID: user.Data.User.OpenID,
			Name:           user.Data.User.DisplayName,
		}, nil
}

func (s *tiktokService) Refresh(ctx context.Context, creds Credentials) (*TokenGrant, error) {
	if creds.RefreshToken == "" {
		return nil, &TokenRefreshError{Platform: models.PlatformTikTok, Message: "no refresh token stored", Revoked: true}
	}

	token, resp, err := s.token(ctx, map[string]string{
		"client_key":    s.cfg.TiktokClientKey,
		"client_secret": s.cfg.TiktokClientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": creds.RefreshToken,
	})
	if err != nil {
		return nil, transportRefreshError(models.PlatformTikTok, err)
	}

	status := resp.StatusCode()
	if resp.IsError() || token.Error != "" {
		revoked := token.Error == oauthInvalidGrant
		return nil, &TokenRefreshError{
			Platform:   models.PlatformTikTok,
			StatusCode: status,
			Message:    tiktokTokenMessage(resp, token),
			Revoked:    revoked,
			Transient:  !revoked && retryableStatus(status),
		}
	}
	if token.AccessToken == "" {
		return nil, &TokenRefreshError{Platform: models.PlatformTikTok, StatusCode: status, Message: "refresh returned no access token"}
	}

	grant := &TokenGrant{
		AccessToken: token.AccessToken,
		ExpiresAt:   GetExpiresAt(int64(token.ExpiresIn)),
	}
	if token.RefreshToken != creds.RefreshToken {
		grant.RefreshToken = token.RefreshToken
	}
	return grant, nil
}

func (s *tiktokService) token(ctx context.Context, form map[string]string) (*transfer.TiktokTokenResponse, *resty.Response, error) {
	var token transfer.TiktokTokenResponse
	resp, err := s.api.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&token).
		SetError(&token).
		Post("/v2/oauth/token/")
	if err != nil {
		return nil, nil, err
	}
	return &token, resp, nil
}

func tiktokTokenMessage(resp *resty.Response, token *transfer.TiktokTokenResponse) string {
	if token.ErrorDescription != "" {
		return token.ErrorDescription
	}
	if token.Error != "" {
		return token.Error
	}
	return resp.Status()
}

// Publish asks TikTok to pull the media from its public URL. The returned
// publish id identifies the asynchronous publish job.
func (s *tiktokService) Publish(ctx context.Context, accessToken string, req *PublishRequest) (string, error) {
	creator, err := s.creatorInfo(ctx, accessToken)
	if err != nil {
		return "", err
	}

	privacy := tiktokPublicLevel
	if len(creator.PrivacyLevelOptions) > 0 && !slices.Contains(creator.PrivacyLevelOptions, tiktokPublicLevel) {
		privacy = creator.PrivacyLevelOptions[0]
	}

	var body any
	path := "/v2/post/publish/video/init/"
	if req.MediaKind == models.MediaKindVideo {
		body = transfer.VideoUploadRequest{
			PostInfo: transfer.VideoPostInfo{
				Title:                 captionOf(req),
				PrivacyLevel:          privacy,
				DisableDuet:           creator.DuetDisabled,
				DisableComment:        creator.CommentDisabled,
				DisableStitch:         creator.StitchDisabled,
				VideoCoverTimestampMs: 1000,
			},
			SourceInfo: transfer.VideoSourceInfo{
				Source:   "PULL_FROM_URL",
				VideoURL: req.MediaURL,
			},
		}
	} else {
		path = "/v2/post/publish/content/init/"
		body = transfer.PhotoUploadRequest{
			PostInfo: transfer.PhotoPostInfo{
				Title:          req.Title,
				Description:    req.Description,
				PrivacyLevel:   privacy,
				DisableComment: creator.CommentDisabled,
				AutoAddMusic:   true,
			},
			SourceInfo: transfer.PhotoSourceInfo{
				Source:          "PULL_FROM_URL",
				PhotoCoverIndex: 0,
				PhotoImages:     []string{req.MediaURL},
			},
			PostMode:  "DIRECT_POST",
			MediaType: "PHOTO",
		}
	}

	var result transfer.TikTokUploadResponse
	resp, err := s.api.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json; charset=UTF-8").
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(path)
	if err != nil {
		return "", transportPublishError(models.PlatformTikTok, err)
	}
	if resp.IsError() || !result.Error.OK() {
		return "", tiktokPublishError(resp, result.Error)
	}
	if result.Data.PublishID == "" {
		return "", &PublishError{Platform: models.PlatformTikTok, StatusCode: resp.StatusCode(), Message: emptyIDMessage}
	}

	slog.Info("tiktok publish started", "post_id", req.PostID, "publish_id", result.Data.PublishID)
	return result.Data.PublishID, nil
}

func (s *tiktokService) creatorInfo(ctx context.Context, accessToken string) (*transfer.TiktokCreatorInfo, error) {
	var result transfer.TiktokCreatorInfoResponse
	resp, err := s.api.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json; charset=UTF-8").
		SetResult(&result).
		SetError(&result).
		Post("/v2/post/publish/creator_info/query/")
	if err != nil {
		return nil, transportPublishError(models.PlatformTikTok, err)
	}
	if resp.IsError() || !result.Error.OK() {
		return nil, tiktokPublishError(resp, result.Error)
	}
	return &result.Data, nil
}

func tiktokPublishError(resp *resty.Response, e transfer.TiktokError) *PublishError {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = resp.Status()
	}
	return &PublishError{Platform: models.PlatformTikTok, StatusCode: resp.StatusCode(), Message: msg}
}
