package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listJournal struct {
	entries []*models.JournaledOutcome
	pushed  int
}

func (j *listJournal) Push(_ context.Context, entry *models.JournaledOutcome) error {
	j.pushed++
	j.entries = append([]*models.JournaledOutcome{entry}, j.entries...)
	return nil
}

func (j *listJournal) Pop(context.Context) (*models.JournaledOutcome, error) {
	if len(j.entries) == 0 {
		return nil, nil
	}
	last := j.entries[len(j.entries)-1]
	j.entries = j.entries[:len(j.entries)-1]
	return last, nil
}

// applyingRecorder writes outcomes straight onto the stored post.
type applyingRecorder struct {
	service.RecorderService
	posts    *claimedPosts
	applyErr error
	applied  []*models.PlatformOutcome
}

func (r *applyingRecorder) Apply(_ context.Context, o *models.PlatformOutcome, _ int) (bool, error) {
	if r.applyErr != nil {
		return false, r.applyErr
	}
	r.applied = append(r.applied, o)
	state := r.posts.posts[o.PostID].State(o.Platform)
	state.Status = o.Status()
	state.ExternalID = o.ExternalID
	return true, nil
}

type claimedPosts struct {
	repository.PostRepository
	posts     map[int64]*models.ScheduledPost
	finalized map[int64]models.Status
	tokens    map[int64]string
}

func (p *claimedPosts) GetByID(_ context.Context, id int64) (*models.ScheduledPost, error) {
	post, ok := p.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *post
	return &cp, nil
}

func (p *claimedPosts) Finalize(_ context.Context, id int64, token string, status models.Status) error {
	p.finalized[id] = status
	p.tokens[id] = token
	return nil
}

func claimedPost(id int64, platforms ...models.Platform) *models.ScheduledPost {
	p := &models.ScheduledPost{ID: id, WorkspaceID: 10, Status: models.StatusInProgress, ClaimToken: "claim-1"}
	for _, platform := range models.AllPlatforms {
		p.State(platform).Status = models.StatusScheduled
	}
	for _, platform := range platforms {
		p.State(platform).Target = true
	}
	return p
}

func journaled(postID int64, platform models.Platform, externalID string) *models.JournaledOutcome {
	return &models.JournaledOutcome{
		Outcome: models.PlatformOutcome{
			PostID:     postID,
			Platform:   platform,
			AttemptID:  "claim-1",
			Published:  true,
			ExternalID: externalID,
		},
		AttemptNo: 1,
	}
}

func reconcileFixture(posts ...*models.ScheduledPost) (*ReconcileJob, *listJournal, *applyingRecorder, *claimedPosts) {
	store := &claimedPosts{
		posts:     make(map[int64]*models.ScheduledPost),
		finalized: make(map[int64]models.Status),
		tokens:    make(map[int64]string),
	}
	for _, p := range posts {
		store.posts[p.ID] = p
	}
	journal := &listJournal{}
	recorder := &applyingRecorder{posts: store}
	return NewReconcileJob(journal, recorder, store), journal, recorder, store
}

func TestReconcileFinalizesHeldPost(t *testing.T) {
	job, journal, recorder, store := reconcileFixture(claimedPost(1, models.PlatformYouTube))
	journal.entries = []*models.JournaledOutcome{journaled(1, models.PlatformYouTube, "vid123")}

	applied := job.Drain(context.Background())

	assert.Equal(t, 1, applied)
	require.Len(t, recorder.applied, 1)
	assert.Equal(t, models.StatusPublished, store.finalized[1])
	assert.Equal(t, "claim-1", store.tokens[1])
	assert.Empty(t, journal.entries)
}

func TestReconcileWaitsForEveryPlatform(t *testing.T) {
	job, journal, _, store := reconcileFixture(claimedPost(1, models.PlatformYouTube, models.PlatformInstagram))
	journal.entries = []*models.JournaledOutcome{journaled(1, models.PlatformYouTube, "vid123")}

	job.Drain(context.Background())
	assert.NotContains(t, store.finalized, int64(1))

	journal.entries = []*models.JournaledOutcome{journaled(1, models.PlatformInstagram, "ig-1")}
	job.Drain(context.Background())
	assert.Equal(t, models.StatusPublished, store.finalized[1])
}

func TestReconcileKeepsEntriesTheDatabaseRefuses(t *testing.T) {
	job, journal, recorder, store := reconcileFixture(claimedPost(1, models.PlatformYouTube))
	entry := journaled(1, models.PlatformYouTube, "vid123")
	journal.entries = []*models.JournaledOutcome{entry}
	recorder.applyErr = errors.New("database unavailable")

	applied := job.Drain(context.Background())

	assert.Zero(t, applied)
	assert.Equal(t, 1, journal.pushed)
	assert.Equal(t, []*models.JournaledOutcome{entry}, journal.entries)
	assert.Empty(t, store.finalized)
}

func TestReconcileLeavesFinishedPostsAlone(t *testing.T) {
	done := claimedPost(1, models.PlatformYouTube)
	done.Status = models.StatusPublished
	done.ClaimToken = ""
	job, journal, _, store := reconcileFixture(done)
	journal.entries = []*models.JournaledOutcome{journaled(1, models.PlatformYouTube, "vid123")}

	assert.Equal(t, 1, job.Drain(context.Background()))
	assert.Empty(t, store.finalized)
}

type expiringConnections struct {
	repository.ConnectionRepository
	conns  []*models.Connection
	before time.Time
}

func (e *expiringConnections) ListExpiring(_ context.Context, before time.Time) ([]*models.Connection, error) {
	e.before = before
	return e.conns, nil
}

type countingTokens struct {
	service.TokenService
	mu     sync.Mutex
	failID int64
	ids    []int64
}

func (c *countingTokens) Refresh(_ context.Context, conn *models.Connection) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, conn.ID)
	if conn.ID == c.failID {
		return "", &service.TokenRefreshError{Platform: conn.Platform, Message: "invalid_grant", Revoked: true}
	}
	return "fresh", nil
}

func TestRefreshTokensRenewsExpiringConnections(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	conns := &expiringConnections{conns: []*models.Connection{
		{ID: 1, Platform: models.PlatformYouTube},
		{ID: 2, Platform: models.PlatformTikTok},
		{ID: 3, Platform: models.PlatformInstagram},
	}}
	tokens := &countingTokens{failID: 2}
	job := NewTokenRefreshJob(conns, tokens)
	job.now = func() time.Time { return now }

	refreshed := job.RefreshTokens(context.Background())

	assert.Equal(t, 2, refreshed)
	assert.ElementsMatch(t, []int64{1, 2, 3}, tokens.ids)
	assert.Equal(t, now.Add(30*time.Minute), conns.before)
}

// blockingTokens holds every refresh until the context is cancelled.
type blockingTokens struct {
	service.TokenService
	mu      sync.Mutex
	calls   int
	started chan struct{}
}

func (b *blockingTokens) Refresh(ctx context.Context, _ *models.Connection) (string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.started <- struct{}{}
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRefreshTokensStopsQueueingOnCancel(t *testing.T) {
	conns := &expiringConnections{}
	for i := int64(1); i <= concurrencyLimit+5; i++ {
		conns.conns = append(conns.conns, &models.Connection{ID: i, Platform: models.PlatformYouTube})
	}
	tokens := &blockingTokens{started: make(chan struct{}, len(conns.conns))}
	job := NewTokenRefreshJob(conns, tokens)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- job.RefreshTokens(ctx) }()

	for i := 0; i < concurrencyLimit; i++ {
		<-tokens.started
	}
	cancel()

	select {
	case refreshed := <-done:
		assert.Zero(t, refreshed)
	case <-time.After(5 * time.Second):
		t.Fatal("refresh job did not return after cancel")
	}
	tokens.mu.Lock()
	defer tokens.mu.Unlock()
	assert.Equal(t, concurrencyLimit, tokens.calls)
}
