package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/metrics"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/internal/service"
	"github.com/maheshrc27/postdispatch/internal/telemetry"
	"github.com/maheshrc27/postdispatch/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// Summary counts what one dispatch run did. Published and Failed count
// platforms; the Posts fields count posts by their final status.
type Summary struct {
	Selected       int `json:"selected"`
	Claimed        int `json:"claimed"`
	Skipped        int `json:"skipped"`
	Published      int `json:"published"`
	Failed         int `json:"failed"`
	PostsPublished int `json:"posts_published"`
	PostsFailed    int `json:"posts_failed"`
	PostsPartial   int `json:"posts_partial"`

	mu sync.Mutex
}

func (s *Summary) add(f func(s *Summary)) {
	s.mu.Lock()
	f(s)
	s.mu.Unlock()
}

func (s *Summary) String() string {
	return fmt.Sprintf("selected=%d claimed=%d skipped=%d published=%d failed=%d",
		s.Selected, s.Claimed, s.Skipped, s.Published, s.Failed)
}

type Dispatcher struct {
	posts       repository.PostRepository
	connections repository.ConnectionRepository
	tokens      service.TokenService
	registry    *service.Registry
	recorder    service.RecorderService

	policy      service.RetryPolicy
	batchSize   int
	workers     int
	lease       time.Duration
	callTimeout time.Duration

	now   func() time.Time
	newID func() (string, error)
}

func NewDispatcher(
	cfg config.Config,
	posts repository.PostRepository,
	connections repository.ConnectionRepository,
	tokens service.TokenService,
	registry *service.Registry,
	recorder service.RecorderService) *Dispatcher {
	d := &Dispatcher{
		posts:       posts,
		connections: connections,
		tokens:      tokens,
		registry:    registry,
		recorder:    recorder,
		policy: service.RetryPolicy{
			Attempts: cfg.Dispatch.RetryAttempts,
			Initial:  cfg.Dispatch.RetryInitial,
			Max:      cfg.Dispatch.RetryMax,
		},
		batchSize:   cfg.Dispatch.BatchSize,
		workers:     cfg.Dispatch.Workers,
		lease:       cfg.Dispatch.Lease,
		callTimeout: cfg.Dispatch.CallTimeout,
		now:         time.Now,
		newID:       utils.NewID,
	}
	if d.policy.Attempts <= 0 {
		d.policy = service.DefaultRetryPolicy()
	}
	if d.workers <= 0 {
		d.workers = 4
	}
	if d.lease <= 0 {
		d.lease = 15 * time.Minute
	}
	if d.callTimeout <= 0 {
		d.callTimeout = 2 * time.Minute
	}
	return d
}

// Run dispatches every due post. Only a failure to select posts is returned
// as an error; platform failures are recorded against their posts.
// Cancelling ctx stops new posts from being claimed while claimed posts
// finish.
func (d *Dispatcher) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	due, err := d.posts.ListDue(ctx, d.now(), d.batchSize)
	if err != nil {
		metrics.ObserveDispatchRun("error", time.Since(start))
		return nil, fmt.Errorf("select due posts: %w", err)
	}

	summary := &Summary{Selected: len(due)}

	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, post := range due {
		if ctx.Err() != nil {
			summary.add(func(s *Summary) { s.Skipped++ })
			continue
		}
		g.Go(func() error {
			d.dispatch(ctx, post, summary)
			return nil
		})
	}
	_ = g.Wait()

	metrics.ObserveDispatchRun("ok", time.Since(start))
	slog.Info("dispatch run finished", "summary", summary.String(), "duration", time.Since(start))
	return summary, nil
}

// RunPost dispatches a single post if it is due.
func (d *Dispatcher) RunPost(ctx context.Context, postID int64) (*Summary, error) {
	post, err := d.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if post == nil {
		return nil, fmt.Errorf("%w: %d", service.ErrUnknownPost, postID)
	}

	summary := &Summary{Selected: 1}
	d.dispatch(ctx, post, summary)
	return summary, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, post *models.ScheduledPost, summary *Summary) {
	if ctx.Err() != nil {
		summary.add(func(s *Summary) { s.Skipped++ })
		return
	}

	token, err := d.newID()
	if err != nil {
		slog.Error("failed to create claim token", "post_id", post.ID, "error", err)
		summary.add(func(s *Summary) { s.Skipped++ })
		return
	}

	ok, err := d.posts.Claim(ctx, post.ID, token, d.now(), d.lease)
	switch {
	case err != nil:
		metrics.IncClaim("error")
		slog.Error("failed to claim post", "post_id", post.ID, "error", err)
		summary.add(func(s *Summary) { s.Skipped++ })
		return
	case !ok:
		metrics.IncClaim("lost")
		slog.Info("post already claimed or no longer due", "post_id", post.ID)
		summary.add(func(s *Summary) { s.Skipped++ })
		return
	}
	metrics.IncClaim("won")
	summary.add(func(s *Summary) { s.Claimed++ })

	// A claimed post is always carried to the end. Each platform call is
	// still bounded by the call timeout.
	work := context.WithoutCancel(ctx)

	if len(post.Targets()) == 0 {
		d.finalize(work, post.ID, token, models.StatusFailed, summary)
		return
	}

	var (
		wg         sync.WaitGroup
		unrecorded bool
		mu         sync.Mutex
	)
	for _, platform := range post.PendingTargets() {
		wg.Add(1)
		go func(platform models.Platform) {
			defer wg.Done()

			outcome, attemptNo := d.publish(work, post, platform, token)
			summary.add(func(s *Summary) {
				if outcome.Published {
					s.Published++
				} else {
					s.Failed++
				}
			})

			if err := d.recorder.Record(work, outcome, attemptNo); err != nil {
				mu.Lock()
				unrecorded = true
				mu.Unlock()
			}
		}(platform)
	}
	wg.Wait()

	if unrecorded {
		// The journaled outcome is applied by the reconciler, which also
		// finalizes the post. Until then the lease keeps it from being
		// selected again.
		slog.Warn("post left claimed with unrecorded outcomes", "post_id", post.ID)
		return
	}

	reloaded, err := d.posts.GetByID(work, post.ID)
	if err != nil || reloaded == nil {
		slog.Error("failed to reload post after dispatch", "post_id", post.ID, "error", err)
		return
	}

	status := models.DeriveStatus(reloaded, models.StatusInProgress)
	if !models.IsTerminal(status) {
		slog.Warn("post has platforms that were not dispatched, releasing", "post_id", post.ID)
		if err := d.posts.Release(work, post.ID, token); err != nil {
			slog.Error("failed to release post", "post_id", post.ID, "error", err)
		}
		return
	}
	d.finalize(work, post.ID, token, status, summary)
}

func (d *Dispatcher) finalize(ctx context.Context, postID int64, token string, status models.Status, summary *Summary) {
	if err := d.posts.Finalize(ctx, postID, token, status); err != nil {
		slog.Error("failed to finalize post", "post_id", postID, "status", status, "error", err)
		return
	}
	metrics.IncFinalized(string(status))
	summary.add(func(s *Summary) {
		switch status {
		case models.StatusPublished:
			s.PostsPublished++
		case models.StatusFailed:
			s.PostsFailed++
		case models.StatusPartialFailure:
			s.PostsPartial++
		}
	})
	slog.Info("post dispatched", "post_id", postID, "status", status)
}

// publish runs one platform to an outcome. It never returns an error: every
// failure becomes a failed outcome for that platform alone.
func (d *Dispatcher) publish(ctx context.Context, post *models.ScheduledPost, platform models.Platform, attemptID string) (*models.PlatformOutcome, int) {
	start := time.Now()
	outcome := &models.PlatformOutcome{
		PostID:    post.ID,
		Platform:  platform,
		AttemptID: attemptID,
	}
	attemptNo := 1

	externalID, err := d.attempt(ctx, post, platform, attemptID, &attemptNo)
	if err != nil {
		outcome.Detail = service.ErrorDetail(err)
		metrics.ObservePublish(platform.String(), "failed", time.Since(start))
		slog.Warn("publish failed",
			"post_id", post.ID,
			"platform", platform,
			"attempts", attemptNo,
			"error", err,
		)
		return outcome, attemptNo
	}

	outcome.Published = true
	outcome.ExternalID = externalID
	metrics.ObservePublish(platform.String(), "published", time.Since(start))
	slog.Info("published", "post_id", post.ID, "platform", platform, "external_id", externalID)
	return outcome, attemptNo
}

func (d *Dispatcher) attempt(ctx context.Context, post *models.ScheduledPost, platform models.Platform, attemptID string, attemptNo *int) (string, error) {
	conn, err := d.connections.Get(ctx, post.WorkspaceID, platform)
	if err != nil {
		return "", fmt.Errorf("load %s connection: %w", platform, err)
	}
	if conn == nil {
		return "", service.ErrNotConnected
	}

	provider, err := d.registry.Provider(platform)
	if err != nil {
		return "", err
	}

	req := &service.PublishRequest{
		PostID:      post.ID,
		Title:       post.Title,
		Description: post.Description,
		MediaURL:    post.MediaURL,
		MediaKind:   post.MediaKind,
		AccountID:   conn.ProviderUserID,
	}

	var externalID string
	err = d.policy.Do(ctx, func(attempt int) error {
		*attemptNo = attempt

		callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
		callCtx, span := telemetry.StartPlatformCall(callCtx, platform.String(), "publish", post.ID)

		token, err := d.tokens.AccessToken(callCtx, conn)
		if err == nil {
			externalID, err = provider.Publish(callCtx, token, req)
		}
		telemetry.EndPlatformCall(span, err, service.Retryable(err))
		return err
	}, func(attempt int, err error, wait time.Duration) {
		metrics.IncPublishRetry(platform.String())
		slog.Warn("publish attempt failed, retrying",
			"post_id", post.ID,
			"platform", platform,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		if rerr := d.recorder.RecordRetry(ctx, post.ID, platform, attemptID, attempt, service.ErrorDetail(err)); rerr != nil {
			slog.Error("failed to log retry", "post_id", post.ID, "platform", platform, "error", rerr)
		}
	})
	if err != nil {
		d.rejectedToken(ctx, conn, err)
		return "", err
	}
	return externalID, nil
}

// rejectedToken flags a connection whose freshly issued token the platform
// refused, so the user is asked to reconnect.
func (d *Dispatcher) rejectedToken(ctx context.Context, conn *models.Connection, err error) {
	var pe *service.PublishError
	if !errors.As(err, &pe) || pe.StatusCode != http.StatusUnauthorized {
		return
	}
	d.tokens.Forget(conn.ID)
	if err := d.connections.MarkReauth(ctx, conn.ID); err != nil {
		slog.Error("failed to mark connection for re-authorization", "connection_id", conn.ID, "error", err)
		return
	}
	slog.Warn("platform rejected access token, connection needs re-authorization",
		"connection_id", conn.ID,
		"platform", conn.Platform,
	)
}
