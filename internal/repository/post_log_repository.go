package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/maheshrc27/postdispatch/internal/models"
)

type PostLogRepository interface {
	Create(ctx context.Context, tx *sql.Tx, entry *models.PostLog) (bool, error)
	ListByPost(ctx context.Context, postID int64) ([]*models.PostLog, error)
}

type postLogRepository struct {
	db *sql.DB
}

func NewPostLogRepository(db *sql.DB) PostLogRepository {
	return &postLogRepository{db: db}
}

// Create appends one entry. Recording the same attempt twice is a no-op and
// reports false.
func (r *postLogRepository) Create(ctx context.Context, tx *sql.Tx, entry *models.PostLog) (bool, error) {
	query := `
		INSERT INTO post_logs (post_id, platform, outcome, detail, attempt_id, attempt_no)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT post_logs_attempt_key DO NOTHING
		RETURNING id, created_at
	`

	err := pick(r.db, tx).QueryRowContext(ctx, query,
		entry.PostID,
		string(entry.Platform),
		string(entry.Outcome),
		entry.Detail,
		entry.AttemptID,
		entry.AttemptNo,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return true, nil
}

func (r *postLogRepository) ListByPost(ctx context.Context, postID int64) ([]*models.PostLog, error) {
	query := `SELECT id, post_id, platform, outcome, detail, attempt_id, attempt_no, created_at
		FROM post_logs WHERE post_id = $1 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var logs []*models.PostLog
	for rows.Next() {
		var l models.PostLog
		err := rows.Scan(&l.ID, &l.PostID, &l.Platform, &l.Outcome, &l.Detail, &l.AttemptID, &l.AttemptNo, &l.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return logs, nil
}
