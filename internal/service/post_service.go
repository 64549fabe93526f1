package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/internal/transfer"
	"github.com/maheshrc27/postdispatch/pkg/utils"
)

const maxMediaBytes = 512 << 20

var allowedMedia = map[string]models.MediaKind{
	"mp4":  models.MediaKindVideo,
	"mov":  models.MediaKindVideo,
	"jpg":  models.MediaKindImage,
	"jpeg": models.MediaKindImage,
	"png":  models.MediaKindImage,
}

type PostService interface {
	Create(ctx context.Context, workspaceID int64, pc *transfer.PostCreation, file *multipart.FileHeader) (*models.ScheduledPost, error)
	List(ctx context.Context, workspaceID int64) ([]*models.ScheduledPost, error)
	Get(ctx context.Context, workspaceID, postID int64) (*models.ScheduledPost, error)
	Logs(ctx context.Context, workspaceID, postID int64) ([]*models.PostLog, error)
	Reschedule(ctx context.Context, workspaceID, postID int64, scheduledTime string) (*models.ScheduledPost, error)
	Remove(ctx context.Context, workspaceID, postID int64) error
}

type postService struct {
	posts       repository.PostRepository
	logs        repository.PostLogRepository
	connections repository.ConnectionRepository
	media       MediaStore
}

func NewPostService(
	posts repository.PostRepository,
	logs repository.PostLogRepository,
	connections repository.ConnectionRepository,
	media MediaStore) PostService {
	return &postService{
		posts:       posts,
		logs:        logs,
		connections: connections,
		media:       media,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ParseScheduledTime accepts RFC 3339 and the form input layout, which is
// read as UTC.
func ParseScheduledTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		return time.Time{}, invalid("invalid scheduled time format %q", s)
	}
	return t.UTC(), nil
}

func parsePlatforms(raw string) ([]models.Platform, error) {
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		names = strings.Split(raw, ",")
	}

	seen := make(map[models.Platform]bool)
	var platforms []models.Platform
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		p, err := models.ParsePlatform(name)
		if err != nil {
			return nil, invalid("%v", err)
		}
		if !seen[p] {
			seen[p] = true
			platforms = append(platforms, p)
		}
	}
	if len(platforms) == 0 {
		return nil, invalid("no platforms selected")
	}
	return platforms, nil
}

func (s *postService) Create(ctx context.Context, workspaceID int64, pc *transfer.PostCreation, file *multipart.FileHeader) (*models.ScheduledPost, error) {
	if pc == nil {
		return nil, invalid("post creation data is nil")
	}
	if workspaceID == 0 {
		return nil, invalid("workspace is not valid")
	}
	if pc.Title == "" && pc.Description == "" {
		return nil, invalid("title or description is required")
	}

	scheduledAt, err := ParseScheduledTime(pc.ScheduledTime)
	if err != nil {
		return nil, err
	}

	platforms, err := parsePlatforms(pc.Platforms)
	if err != nil {
		return nil, err
	}
	for _, p := range platforms {
		conn, err := s.connections.Get(ctx, workspaceID, p)
		if err != nil {
			return nil, fmt.Errorf("error checking %s connection: %w", p, err)
		}
		if conn == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotConnected, p)
		}
	}

	post := &models.ScheduledPost{
		WorkspaceID: workspaceID,
		Title:       pc.Title,
		Description: pc.Description,
		ScheduledAt: scheduledAt,
		Status:      models.StatusScheduled,
	}

	if file != nil {
		post.MediaURL, post.MediaKind, err = s.storeFile(ctx, workspaceID, file)
		if err != nil {
			return nil, err
		}
	} else {
		if pc.MediaURL == "" {
			return nil, invalid("a media file or media_url is required")
		}
		kind := models.MediaKind(pc.MediaKind)
		if kind != models.MediaKindVideo && kind != models.MediaKindImage {
			return nil, invalid("media_kind must be video or image")
		}
		post.MediaURL, post.MediaKind = pc.MediaURL, kind
	}

	for _, p := range platforms {
		if p == models.PlatformYouTube && post.MediaKind != models.MediaKindVideo {
			return nil, invalid("youtube only accepts video media")
		}
		state := post.State(p)
		state.Target = true
		state.Status = models.StatusScheduled
	}

	id, err := s.posts.Create(ctx, nil, post)
	if err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}
	post.ID = id

	slog.Info("post scheduled", "post_id", id, "workspace_id", workspaceID, "scheduled_at", scheduledAt)
	return post, nil
}

func (s *postService) storeFile(ctx context.Context, workspaceID int64, file *multipart.FileHeader) (string, models.MediaKind, error) {
	if file.Size > maxMediaBytes {
		return "", "", invalid("media file exceeds %d bytes", maxMediaBytes)
	}

	f, err := file.Open()
	if err != nil {
		return "", "", fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return "", "", fmt.Errorf("error reading file content: %w", err)
	}

	kind, ext, mime, err := detectMedia(content)
	if err != nil {
		return "", "", err
	}

	id, err := utils.NewID()
	if err != nil {
		return "", "", err
	}
	key := fmt.Sprintf("%d/%s.%s", workspaceID, id, ext)

	url, err := s.media.Upload(ctx, key, content, mime)
	if err != nil {
		return "", "", fmt.Errorf("error uploading file: %w", err)
	}
	return url, kind, nil
}

func detectMedia(content []byte) (models.MediaKind, string, string, error) {
	kind, err := filetype.Match(content)
	if err != nil || kind == types.Unknown {
		return "", "", "", invalid("unsupported file type")
	}
	mediaKind, ok := allowedMedia[kind.Extension]
	if !ok {
		return "", "", "", invalid("file type %s is not allowed", kind.Extension)
	}
	return mediaKind, kind.Extension, kind.MIME.Value, nil
}

func (s *postService) List(ctx context.Context, workspaceID int64) ([]*models.ScheduledPost, error) {
	posts, err := s.posts.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("error getting posts: %w", err)
	}
	return posts, nil
}

func (s *postService) Get(ctx context.Context, workspaceID, postID int64) (*models.ScheduledPost, error) {
	if postID == 0 {
		return nil, invalid("post id is not valid")
	}

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post: %w", err)
	}
	if post == nil || post.WorkspaceID != workspaceID {
		return nil, ErrUnknownPost
	}
	return post, nil
}

func (s *postService) Logs(ctx context.Context, workspaceID, postID int64) ([]*models.PostLog, error) {
	if _, err := s.Get(ctx, workspaceID, postID); err != nil {
		return nil, err
	}
	return s.logs.ListByPost(ctx, postID)
}

// Reschedule moves a post to a new time and queues its failed platforms
// again. Platforms already published stay published.
func (s *postService) Reschedule(ctx context.Context, workspaceID, postID int64, scheduledTime string) (*models.ScheduledPost, error) {
	at, err := ParseScheduledTime(scheduledTime)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, workspaceID, postID); err != nil {
		return nil, err
	}

	ok, err := s.posts.Reschedule(ctx, postID, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: post is being dispatched or already published", ErrPostBusy)
	}
	return s.Get(ctx, workspaceID, postID)
}

func (s *postService) Remove(ctx context.Context, workspaceID, postID int64) error {
	post, err := s.Get(ctx, workspaceID, postID)
	if err != nil {
		return err
	}
	if post.Status == models.StatusInProgress {
		return fmt.Errorf("%w: post is being dispatched", ErrPostBusy)
	}
	if err := s.posts.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post: %w", err)
	}
	return nil
}
