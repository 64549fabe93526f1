package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

type youtubeService struct {
	cfg    config.Config
	oauth  *oauth2.Config
	client *http.Client
}

func NewYoutubeService(cfg config.Config, client *http.Client) PlatformService {
	tokenURL := cfg.Endpoints.GoogleToken
	if tokenURL == "" {
		tokenURL = google.Endpoint.TokenURL
	}

	return &youtubeService{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   google.Endpoint.AuthURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

func (s *youtubeService) Platform() models.Platform {
	return models.PlatformYouTube
}

func (s *youtubeService) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *youtubeService) Exchange(ctx context.Context, code string) (*TokenGrant, *Account, error) {
	if code == "" {
		return nil, nil, fmt.Errorf("%w: authorization code is empty", ErrInvalidInput)
	}

	token, err := s.oauth.Exchange(s.clientContext(ctx), code)
	if err != nil {
		slog.Info(err.Error())
		return nil, nil, err
	}
	if token.RefreshToken == "" {
		return nil, nil, errors.New("google did not return a refresh token")
	}

	svc, err := s.newYoutube(ctx, token.AccessToken)
	if err != nil {
		return nil, nil, err
	}
	channels, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("error fetching channel: %w", err)
	}
	if len(channels.Items) == 0 {
		return nil, nil, errors.New("no YouTube channel on this Google account")
	}

	channel := channels.Items[0]
	account := &Account{ProviderUserID: channel.Id}
	if channel.Snippet != nil {
		account.Name = channel.Snippet.Title
	}

	return &TokenGrant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiryOf(token),
	}, account, nil
}

func (s *youtubeService) Refresh(ctx context.Context, creds Credentials) (*TokenGrant, error) {
	if creds.RefreshToken == "" {
		return nil, &TokenRefreshError{Platform: models.PlatformYouTube, Message: "no refresh token stored", Revoked: true}
	}

	src := s.oauth.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: creds.RefreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, s.refreshError(err)
	}

	grant := &TokenGrant{AccessToken: token.AccessToken, ExpiresAt: expiryOf(token)}
	if token.RefreshToken != creds.RefreshToken {
		grant.RefreshToken = token.RefreshToken
	}
	return grant, nil
}

func (s *youtubeService) refreshError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &TokenRefreshError{Platform: models.PlatformYouTube, Message: err.Error(), Transient: true, Err: err}
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	msg := re.ErrorDescription
	if msg == "" {
		msg = re.ErrorCode
	}
	if msg == "" {
		msg = string(re.Body)
	}

	revoked := re.ErrorCode == oauthInvalidGrant
	return &TokenRefreshError{
		Platform:   models.PlatformYouTube,
		StatusCode: status,
		Message:    msg,
		Revoked:    revoked,
		Transient:  !revoked && (status == 0 || retryableStatus(status)),
		Err:        err,
	}
}

func (s *youtubeService) Publish(ctx context.Context, accessToken string, req *PublishRequest) (string, error) {
	if req.MediaKind != models.MediaKindVideo {
		return "", &PublishError{Platform: models.PlatformYouTube, Message: "youtube only accepts video media"}
	}

	svc, err := s.newYoutube(ctx, accessToken)
	if err != nil {
		return "", err
	}

	media, err := openMedia(ctx, s.client, req.MediaURL)
	if err != nil {
		return "", err
	}
	defer media.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	resp, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(media).Context(ctx).Do()
	if err != nil {
		return "", publishErrorFromGoogle(err)
	}
	if resp.Id == "" {
		return "", &PublishError{Platform: models.PlatformYouTube, StatusCode: resp.HTTPStatusCode, Message: emptyIDMessage}
	}

	slog.Info("video uploaded", "post_id", req.PostID, "video_id", resp.Id)
	return resp.Id, nil
}

func (s *youtubeService) newYoutube(ctx context.Context, accessToken string) (*youtube.Service, error) {
	httpClient := oauth2.NewClient(s.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if s.cfg.Endpoints.YoutubeAPI != "" {
		opts = append(opts, option.WithEndpoint(s.cfg.Endpoints.YoutubeAPI))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating YouTube service: %w", err)
	}
	return svc, nil
}

// clientContext makes the oauth2 package use the instrumented client.
func (s *youtubeService) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}

func publishErrorFromGoogle(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = gerr.Body
		}
		return &PublishError{Platform: models.PlatformYouTube, StatusCode: gerr.Code, Message: msg, Err: err}
	}
	return &PublishError{Platform: models.PlatformYouTube, Message: err.Error(), Err: err}
}

func expiryOf(token *oauth2.Token) *time.Time {
	if token.Expiry.IsZero() {
		return nil
	}
	t := token.Expiry.UTC()
	return &t
}
