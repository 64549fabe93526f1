package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/transfer"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

// facebookService publishes to a Facebook Page. The connection stores a
// long-lived user token; the page token is looked up per publish.
type facebookService struct {
	cfg    config.Config
	oauth  *oauth2.Config
	graph  *resty.Client
	client *http.Client
}

func NewFacebookService(cfg config.Config, client *http.Client) PlatformService {
	return &facebookService{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.FacebookClientID,
			ClientSecret: cfg.FacebookClientSecret,
			RedirectURL:  cfg.FacebookRedirectURI,
			Scopes:       []string{"pages_show_list", "pages_read_engagement", "pages_manage_posts"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   facebook.Endpoint.AuthURL,
				TokenURL:  cfg.Endpoints.FacebookGraph + "/" + graphVersion + "/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		graph:  newGraphClient(client, cfg.Endpoints.FacebookGraph),
		client: client,
	}
}

func (fb *facebookService) Platform() models.Platform {
	return models.PlatformFacebook
}

func (fb *facebookService) AuthURL(state string) string {
	return fb.oauth.AuthCodeURL(state)
}

func (fb *facebookService) Exchange(ctx context.Context, code string) (*TokenGrant, *Account, error) {
	if code == "" {
		return nil, nil, fmt.Errorf("%w: authorization code is empty", ErrInvalidInput)
	}

	token, err := fb.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, fb.client), code)
	if err != nil {
		slog.Info(err.Error())
		return nil, nil, err
	}

	grant, err := fb.Refresh(ctx, Credentials{AccessToken: token.AccessToken})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get long-lived token: %w", err)
	}

	var pages transfer.FacebookPageList
	var apiErr transfer.GraphErrorResponse
	resp, err := fb.graph.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fields":       "id,name",
			"access_token": grant.AccessToken,
		}).
		SetResult(&pages).
		SetError(&apiErr).
		Get("/" + graphVersion + "/me/accounts")
	if err != nil {
		return nil, nil, fmt.Errorf("error listing pages: %w", err)
	}
	if resp.IsError() {
		return nil, nil, fmt.Errorf("error listing pages: %s", graphMessage(resp, &apiErr))
	}
	if len(pages.Data) == 0 {
		return nil, nil, errors.New("no Facebook page is managed by this account")
	}

	page := pages.Data[0]
	return grant, &Account{ProviderUserID: page.ID, Name: page.Name}, nil
}

// Refresh exchanges the stored user token for a fresh long-lived one.
func (fb *facebookService) Refresh(ctx context.Context, creds Credentials) (*TokenGrant, error) {
	var result transfer.GraphTokenResponse
	var apiErr transfer.GraphErrorResponse

	resp, err := fb.graph.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":        "fb_exchange_token",
			"client_id":         fb.cfg.FacebookClientID,
			"client_secret":     fb.cfg.FacebookClientSecret,
			"fb_exchange_token": creds.AccessToken,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Get("/" + graphVersion + "/oauth/access_token")
	if err != nil {
		return nil, transportRefreshError(models.PlatformFacebook, err)
	}
	if resp.IsError() {
		return nil, graphRefreshError(models.PlatformFacebook, resp, &apiErr)
	}
	if result.AccessToken == "" {
		return nil, &TokenRefreshError{Platform: models.PlatformFacebook, StatusCode: resp.StatusCode(), Message: "refresh returned no access token"}
	}

	return &TokenGrant{
		AccessToken: result.AccessToken,
		ExpiresAt:   GetExpiresAt(result.ExpiresIn),
	}, nil
}

func (fb *facebookService) Publish(ctx context.Context, accessToken string, req *PublishRequest) (string, error) {
	if req.AccountID == "" {
		return "", &PublishError{Platform: models.PlatformFacebook, Message: "facebook page id is missing"}
	}

	pageToken, err := fb.pageToken(ctx, accessToken, req.AccountID)
	if err != nil {
		return "", err
	}

	path := "/" + graphVersion + "/" + req.AccountID
	form := map[string]string{"access_token": pageToken}
	if req.MediaKind == models.MediaKindVideo {
		path += "/videos"
		form["file_url"] = req.MediaURL
		form["title"] = req.Title
		form["description"] = req.Description
	} else {
		path += "/photos"
		form["url"] = req.MediaURL
		form["caption"] = captionOf(req)
	}

	var result transfer.GraphIDResponse
	var apiErr transfer.GraphErrorResponse
	resp, err := fb.graph.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return "", transportPublishError(models.PlatformFacebook, err)
	}
	if resp.IsError() {
		return "", graphPublishError(models.PlatformFacebook, resp, &apiErr)
	}

	id := result.PostID
	if id == "" {
		id = result.ID
	}
	if id == "" {
		return "", &PublishError{Platform: models.PlatformFacebook, StatusCode: resp.StatusCode(), Message: emptyIDMessage}
	}

	slog.Info("facebook post published", "post_id", req.PostID, "facebook_id", id)
	return id, nil
}

func (fb *facebookService) pageToken(ctx context.Context, userToken, pageID string) (string, error) {
	var page transfer.FacebookPage
	var apiErr transfer.GraphErrorResponse

	resp, err := fb.graph.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fields":       "access_token",
			"access_token": userToken,
		}).
		SetResult(&page).
		SetError(&apiErr).
		Get("/" + graphVersion + "/" + pageID)
	if err != nil {
		return "", transportPublishError(models.PlatformFacebook, err)
	}
	if resp.IsError() {
		return "", graphPublishError(models.PlatformFacebook, resp, &apiErr)
	}
	if page.AccessToken == "" {
		return "", &PublishError{Platform: models.PlatformFacebook, StatusCode: resp.StatusCode(), Message: "no page access token for page " + pageID}
	}
	return page.AccessToken, nil
}
