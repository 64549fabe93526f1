package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeConnections struct {
	mu        sync.Mutex
	conns     map[int64]*models.Connection
	nextID    int64
	updates   int
	reauthIDs []int64
	updateErr error
}

func newFakeConnections(conns ...*models.Connection) *fakeConnections {
	f := &fakeConnections{conns: make(map[int64]*models.Connection), nextID: 100}
	for _, c := range conns {
		cp := *c
		f.conns[c.ID] = &cp
	}
	return f
}

func (f *fakeConnections) Get(_ context.Context, workspaceID int64, platform models.Platform) (*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		if c.WorkspaceID == workspaceID && c.Platform == platform {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeConnections) GetByID(_ context.Context, id int64) (*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.conns[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeConnections) ListByWorkspace(_ context.Context, workspaceID int64) ([]*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Connection
	for _, c := range f.conns {
		if c.WorkspaceID == workspaceID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeConnections) ListExpiring(_ context.Context, before time.Time) ([]*models.Connection, error) {
	return nil, nil
}

func (f *fakeConnections) Upsert(_ context.Context, c *models.Connection) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.conns {
		if existing.WorkspaceID == c.WorkspaceID && existing.Platform == c.Platform {
			cp := *c
			cp.ID = id
			f.conns[id] = &cp
			return id, nil
		}
	}
	f.nextID++
	cp := *c
	cp.ID = f.nextID
	f.conns[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeConnections) UpdateTokens(_ context.Context, id int64, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	c, ok := f.conns[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.AccessToken = accessToken
	if refreshToken != nil {
		c.RefreshToken = refreshToken
	}
	c.ExpiresAt = expiresAt
	return nil
}

func (f *fakeConnections) MarkReauth(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reauthIDs = append(f.reauthIDs, id)
	if c, ok := f.conns[id]; ok {
		c.Status = models.ConnectionStatusReauthRequired
	}
	return nil
}

func (f *fakeConnections) Remove(_ context.Context, workspaceID int64, platform models.Platform) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.conns {
		if c.WorkspaceID == workspaceID && c.Platform == platform {
			delete(f.conns, id)
			return nil
		}
	}
	return repository.ErrNotFound
}

// fakePosts applies outcomes with the same write-once rule as the SQL
// update.
type fakePosts struct {
	mu       sync.Mutex
	posts    map[int64]*models.ScheduledPost
	applyErr error
	created  []*models.ScheduledPost
}

func newFakePosts(posts ...*models.ScheduledPost) *fakePosts {
	f := &fakePosts{posts: make(map[int64]*models.ScheduledPost)}
	for _, p := range posts {
		f.posts[p.ID] = p
	}
	return f
}

func (f *fakePosts) Create(_ context.Context, _ *sql.Tx, post *models.ScheduledPost) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.posts) + 1)
	cp := *post
	cp.ID = id
	f.posts[id] = &cp
	f.created = append(f.created, &cp)
	return id, nil
}

func (f *fakePosts) GetByID(_ context.Context, id int64) (*models.ScheduledPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePosts) ListByWorkspace(_ context.Context, workspaceID int64) ([]*models.ScheduledPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ScheduledPost
	for _, p := range f.posts {
		if p.WorkspaceID == workspaceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePosts) ListDue(context.Context, time.Time, int) ([]*models.ScheduledPost, error) {
	return nil, nil
}

func (f *fakePosts) Claim(context.Context, int64, string, time.Time, time.Duration) (bool, error) {
	return true, nil
}

func (f *fakePosts) ApplyOutcome(_ context.Context, _ *sql.Tx, o *models.PlatformOutcome) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return false, f.applyErr
	}
	p, ok := f.posts[o.PostID]
	if !ok {
		return false, nil
	}
	state := p.State(o.Platform)
	if state.Status != models.StatusScheduled {
		return false, nil
	}
	state.Status = o.Status()
	if o.Published {
		state.ExternalID = o.ExternalID
	} else {
		line := string(o.Platform) + ": " + o.Detail
		if p.PostError == "" {
			p.PostError = line
		} else {
			p.PostError += "\n" + line
		}
	}
	return true, nil
}

func (f *fakePosts) Finalize(context.Context, int64, string, models.Status) error { return nil }
func (f *fakePosts) Release(context.Context, int64, string) error                 { return nil }

func (f *fakePosts) Reschedule(_ context.Context, id int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok || p.Status == models.StatusInProgress || p.Status == models.StatusPublished {
		return false, nil
	}
	p.ScheduledAt = at
	p.Status = models.StatusScheduled
	p.PostError = ""
	for _, platform := range models.AllPlatforms {
		if s := p.State(platform); s.Status == models.StatusFailed {
			s.Status = models.StatusScheduled
		}
	}
	return true, nil
}

func (f *fakePosts) Remove(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.posts, id)
	return nil
}

// fakeLogs enforces the per-attempt uniqueness of post_logs.
type fakeLogs struct {
	mu      sync.Mutex
	entries []*models.PostLog
}

func (f *fakeLogs) Create(_ context.Context, _ *sql.Tx, entry *models.PostLog) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.PostID == entry.PostID && e.Platform == entry.Platform && e.AttemptID == entry.AttemptID &&
			e.Outcome == entry.Outcome && e.AttemptNo == entry.AttemptNo {
			return false, nil
		}
	}
	cp := *entry
	f.entries = append(f.entries, &cp)
	return true, nil
}

func (f *fakeLogs) ListByPost(_ context.Context, postID int64) ([]*models.PostLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PostLog
	for _, e := range f.entries {
		if e.PostID == postID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeTx struct{}

func (fakeTx) WithTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []*models.JournaledOutcome
}

func (f *fakeJournal) Push(_ context.Context, entry *models.JournaledOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakeAlerts struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakeAlerts) Notify(_ context.Context, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return nil
}

// fakeProvider counts calls and returns scripted results.
type fakeProvider struct {
	platform models.Platform

	mu          sync.Mutex
	refreshes   int
	publishes   int
	grant       *TokenGrant
	refreshErr  error
	lastToken   string
	publishID   string
	publishErrs []error
}

func (p *fakeProvider) Platform() models.Platform { return p.platform }

func (p *fakeProvider) Refresh(context.Context, Credentials) (*TokenGrant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.grant, nil
}

func (p *fakeProvider) Publish(_ context.Context, accessToken string, _ *PublishRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishes++
	p.lastToken = accessToken
	if len(p.publishErrs) > 0 {
		err := p.publishErrs[0]
		p.publishErrs = p.publishErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return p.publishID, nil
}

func (p *fakeProvider) AuthURL(state string) string {
	return "https://auth.example.com/" + string(p.platform) + "?state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*TokenGrant, *Account, error) {
	if code == "" {
		return nil, nil, ErrInvalidInput
	}
	return p.grant, &Account{ProviderUserID: "acct-1", Name: "Test Account"}, nil
}

func newTestRegistry(t interface{ Fatalf(string, ...any) }, overrides ...*fakeProvider) (*Registry, map[models.Platform]*fakeProvider) {
	byPlatform := make(map[models.Platform]*fakeProvider)
	for _, p := range models.AllPlatforms {
		byPlatform[p] = &fakeProvider{platform: p, publishID: string(p) + "-id"}
	}
	for _, o := range overrides {
		byPlatform[o.platform] = o
	}

	var providers []Provider
	for _, p := range models.AllPlatforms {
		providers = append(providers, byPlatform[p])
	}
	r, err := NewRegistry(providers...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r, byPlatform
}
