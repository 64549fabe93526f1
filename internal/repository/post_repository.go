package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/maheshrc27/postdispatch/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	ListByWorkspace(ctx context.Context, workspaceID int64) ([]*models.ScheduledPost, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
	Claim(ctx context.Context, id int64, token string, now time.Time, lease time.Duration) (bool, error)
	ApplyOutcome(ctx context.Context, tx *sql.Tx, outcome *models.PlatformOutcome) (bool, error)
	Finalize(ctx context.Context, id int64, token string, status models.Status) error
	Release(ctx context.Context, id int64, token string) error
	Reschedule(ctx context.Context, id int64, at time.Time) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func postColumns() []string {
	cols := []string{
		"id", "workspace_id", "title", "description", "media_url", "media_kind",
		"scheduled_at", "status", "post_error", "claim_token", "claimed_until",
	}
	for _, p := range models.AllPlatforms {
		cols = append(cols, p.TargetColumn(), p.StatusColumn(), p.ExternalIDColumn())
	}
	return append(cols, "created_at", "updated_at")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.ScheduledPost, error) {
	var (
		post         models.ScheduledPost
		claimToken   sql.NullString
		claimedUntil sql.NullTime
	)

	dest := []any{
		&post.ID, &post.WorkspaceID, &post.Title, &post.Description, &post.MediaURL, &post.MediaKind,
		&post.ScheduledAt, &post.Status, &post.PostError, &claimToken, &claimedUntil,
	}
	for _, p := range models.AllPlatforms {
		state := post.State(p)
		dest = append(dest, &state.Target, &state.Status, &state.ExternalID)
	}
	dest = append(dest, &post.CreatedAt, &post.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	post.ClaimToken = claimToken.String
	if claimedUntil.Valid {
		t := claimedUntil.Time
		post.ClaimedUntil = &t
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	cols := []string{"workspace_id", "title", "description", "media_url", "media_kind", "scheduled_at", "status"}
	vals := []any{post.WorkspaceID, post.Title, post.Description, post.MediaURL, string(post.MediaKind), post.ScheduledAt.UTC(), string(models.StatusScheduled)}
	for _, p := range models.AllPlatforms {
		cols = append(cols, p.TargetColumn(), p.StatusColumn())
		vals = append(vals, post.State(p).Target, string(models.StatusScheduled))
	}

	query, args, err := r.sb.Insert("posts").Columns(cols...).Values(vals...).Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build post insert: %w", err)
	}

	var id int64
	if err := pick(r.db, tx).QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query, args, err := r.sb.Select(postColumns()...).From("posts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build post select: %w", err)
	}

	post, err := scanPost(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListByWorkspace(ctx context.Context, workspaceID int64) ([]*models.ScheduledPost, error) {
	q := r.sb.Select(postColumns()...).
		From("posts").
		Where(sq.Eq{"workspace_id": workspaceID}).
		OrderBy("scheduled_at DESC", "id DESC")
	return r.query(ctx, q)
}

// dueQuery selects scheduled posts whose time has come and claimed posts
// whose lease ran out.
func (r *postRepository) dueQuery(now time.Time, limit int) sq.SelectBuilder {
	return r.sb.Select(postColumns()...).
		From("posts").
		Where(dueCondition(now)).
		OrderBy("scheduled_at ASC", "id ASC").
		Limit(uint64(limit))
}

func dueCondition(now time.Time) sq.Or {
	return sq.Or{
		sq.And{
			sq.Eq{"status": string(models.StatusScheduled)},
			sq.LtOrEq{"scheduled_at": now},
		},
		sq.And{
			sq.Eq{"status": string(models.StatusInProgress)},
			sq.Lt{"claimed_until": now},
		},
	}
}

func (r *postRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx, r.dueQuery(now.UTC(), limit))
}

func (r *postRepository) query(ctx context.Context, q sq.SelectBuilder) ([]*models.ScheduledPost, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build post select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post rows: %w", err)
	}
	return posts, nil
}

// Claim moves a due post to in progress under token. It reports false when
// another dispatcher already holds the post or it is no longer due.
func (r *postRepository) Claim(ctx context.Context, id int64, token string, now time.Time, lease time.Duration) (bool, error) {
	now = now.UTC()
	query, args, err := r.sb.Update("posts").
		Set("status", string(models.StatusInProgress)).
		Set("claim_token", token).
		Set("claimed_until", now.Add(lease)).
		Set("updated_at", now).
		Where(sq.Eq{"id": id}).
		Where(dueCondition(now)).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build post claim: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("claim post %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// outcomeUpdate writes a platform result only while that platform is still
// scheduled, so a status is written at most once per dispatch.
func (r *postRepository) outcomeUpdate(outcome *models.PlatformOutcome) sq.UpdateBuilder {
	q := r.sb.Update("posts").
		Set(outcome.Platform.StatusColumn(), string(outcome.Status())).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": outcome.PostID}).
		Where(sq.Eq{outcome.Platform.StatusColumn(): string(models.StatusScheduled)})

	if outcome.Published {
		return q.Set(outcome.Platform.ExternalIDColumn(), outcome.ExternalID)
	}
	line := fmt.Sprintf("%s: %s", outcome.Platform, outcome.Detail)
	return q.Set("post_error", sq.Expr("CASE WHEN post_error = '' THEN ? ELSE post_error || chr(10) || ? END", line, line))
}

func (r *postRepository) ApplyOutcome(ctx context.Context, tx *sql.Tx, outcome *models.PlatformOutcome) (bool, error) {
	q := r.outcomeUpdate(outcome)
	query, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build outcome update: %w", err)
	}

	res, err := pick(r.db, tx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("apply %s outcome to post %d: %w", outcome.Platform, outcome.PostID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postRepository) Finalize(ctx context.Context, id int64, token string, status models.Status) error {
	query, args, err := r.sb.Update("posts").
		Set("status", string(status)).
		Set("claim_token", nil).
		Set("claimed_until", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "claim_token": token}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build post finalize: %w", err)
	}
	return r.execOne(ctx, query, args, "finalize post %d", id)
}

// Release hands a claimed post back to the selector untouched.
func (r *postRepository) Release(ctx context.Context, id int64, token string) error {
	query, args, err := r.sb.Update("posts").
		Set("status", string(models.StatusScheduled)).
		Set("claim_token", nil).
		Set("claimed_until", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "claim_token": token}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build post release: %w", err)
	}
	return r.execOne(ctx, query, args, "release post %d", id)
}

// reschedulableStatuses are the overall statuses a post can be moved from.
// Claimed and fully published posts are left alone.
var reschedulableStatuses = []string{
	string(models.StatusScheduled),
	string(models.StatusFailed),
	string(models.StatusPartialFailure),
}

func (r *postRepository) rescheduleUpdate(id int64, at time.Time) sq.UpdateBuilder {
	q := r.sb.Update("posts").
		Set("status", string(models.StatusScheduled)).
		Set("scheduled_at", at.UTC()).
		Set("post_error", "").
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": reschedulableStatuses})

	for _, p := range models.AllPlatforms {
		col := p.StatusColumn()
		q = q.Set(col, sq.Expr(
			fmt.Sprintf("CASE WHEN %s = ? THEN ? ELSE %s END", col, col),
			string(models.StatusFailed), string(models.StatusScheduled),
		))
	}
	return q
}

// Reschedule puts failed platforms back in the queue at a new time. It
// reports false when the post is claimed or already published.
func (r *postRepository) Reschedule(ctx context.Context, id int64, at time.Time) (bool, error) {
	query, args, err := r.rescheduleUpdate(id, at).ToSql()
	if err != nil {
		return false, fmt.Errorf("build post reschedule: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("reschedule post %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query, args, err := r.sb.Delete("posts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build post delete: %w", err)
	}
	return r.execOne(ctx, query, args, "remove post %d", id)
}

func (r *postRepository) execOne(ctx context.Context, query string, args []any, format string, id int64) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf(format+": %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
