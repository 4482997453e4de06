package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"social-post-scheduler/internal/models"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const postColumns = `id, content, scheduled_for, is_draft, status, created_at, updated_at, posted_at,
	tweet_id, error, recurring_pattern, recurring_end_date, series_id, media_urls`

const insertPost = `
	INSERT INTO posts (id, content, scheduled_for, is_draft, status, created_at, updated_at,
		recurring_pattern, recurring_end_date, series_id, media_urls)
	VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8, $9, $10)
	RETURNING ` + postColumns

// CreatePost inserts a single post row.
func (s *Store) CreatePost(ctx context.Context, p NewPost) (models.Post, error) {
	post, err := scanPost(s.pool.QueryRow(ctx, insertPost, insertArgs(p, time.Now().UTC())...))
	if err != nil {
		return models.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

// CreateSeries inserts every occurrence of a recurring series in one
// transaction. Either all rows exist afterwards or none do.
func (s *Store) CreateSeries(ctx context.Context, posts []NewPost) ([]models.Post, error) {
	if len(posts) == 0 {
		return nil, fmt.Errorf("%w: empty series", models.ErrInvalidRequest)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	now := time.Now().UTC()
	out := make([]models.Post, 0, len(posts))
	for i, p := range posts {
		post, err := scanPost(tx.QueryRow(ctx, insertPost, insertArgs(p, now)...))
		if err != nil {
			return nil, fmt.Errorf("insert series post %d: %w", i, err)
		}
		out = append(out, post)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// GetPost fetches a post by id.
func (s *Store) GetPost(ctx context.Context, id string) (models.Post, error) {
	post, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Post{}, fmt.Errorf("get post %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("scan post: %w", err)
	}
	return post, nil
}

// UpdatePost applies a user edit. Posts being delivered or already posted are
// left untouched and reported as ErrConflict.
func (s *Store) UpdatePost(ctx context.Context, id string, c PostChanges) (models.Post, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Post{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM posts WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Post{}, fmt.Errorf("update post %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("lock post: %w", err)
	}
	if !models.Status(status).Editable() {
		return models.Post{}, fmt.Errorf("update post %s (%s): %w", id, status, models.ErrConflict)
	}

	post, err := scanPost(tx.QueryRow(ctx, `
		UPDATE posts
		SET content = $2, scheduled_for = $3, is_draft = $4, status = $5, media_urls = $6,
			error = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING `+postColumns,
		id, c.Content, c.ScheduledFor, c.IsDraft, string(c.Status), normalizeMedia(c.MediaURLs)))
	if err != nil {
		return models.Post{}, fmt.Errorf("update post: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Post{}, fmt.Errorf("commit: %w", err)
	}
	return post, nil
}

// DeletePost removes a post.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete post %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListDrafts returns drafts, most recently edited first.
func (s *Store) ListDrafts(ctx context.Context) ([]models.Post, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM posts WHERE is_draft ORDER BY updated_at DESC, id`)
}

// ListScheduled returns every non-draft post, earliest first.
func (s *Store) ListScheduled(ctx context.Context) ([]models.Post, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM posts WHERE NOT is_draft ORDER BY scheduled_for ASC NULLS LAST, id`)
}

// FindDue returns up to limit scheduled, non-draft posts whose time has come,
// oldest first.
func (s *Store) FindDue(ctx context.Context, now time.Time, limit int) ([]models.Post, error) {
	return s.queryPosts(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE status = 'scheduled' AND NOT is_draft AND scheduled_for <= $1
		ORDER BY scheduled_for ASC, id
		LIMIT $2
	`, now, limit)
}

// ClaimForDelivery moves a post from scheduled to sending. It returns false
// when the post is no longer scheduled or another tick holds its row lock.
func (s *Store) ClaimForDelivery(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		WITH cte AS (
			SELECT id FROM posts
			WHERE id = $1 AND status = 'scheduled' AND NOT is_draft
			FOR UPDATE SKIP LOCKED
		)
		UPDATE posts
		SET status = 'sending', claimed_at = NOW(), updated_at = NOW()
		WHERE id IN (SELECT id FROM cte)
	`, id)
	if err != nil {
		return false, fmt.Errorf("claim post: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPosted records a successful delivery of a claimed post.
func (s *Store) MarkPosted(ctx context.Context, id, tweetID string, postedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts
		SET status = 'posted', tweet_id = $2, posted_at = $3, error = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`, id, tweetID, postedAt)
	if err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark posted %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// MarkFailed records a failed delivery of a claimed post.
func (s *Store) MarkFailed(ctx context.Context, id, msg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts
		SET status = 'failed', error = $2, tweet_id = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`, id, failureMessage(msg))
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark failed %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// FailStaleClaims fails posts left in sending since before the cutoff, which
// happens when a process dies mid-delivery. They are never re-published.
func (s *Store) FailStaleClaims(ctx context.Context, before time.Time, msg string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts
		SET status = 'failed', error = $2, claimed_at = NULL, updated_at = NOW()
		WHERE status = 'sending' AND claimed_at < $1
	`, before, failureMessage(msg))
	if err != nil {
		return 0, fmt.Errorf("fail stale claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) queryPosts(ctx context.Context, sql string, args ...any) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	out := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}

func insertArgs(p NewPost, now time.Time) []any {
	var pattern *string
	if p.RecurringPattern != nil {
		v := string(*p.RecurringPattern)
		pattern = &v
	}
	return []any{
		uuid.New().String(), p.Content, p.ScheduledFor, p.IsDraft, string(p.Status), now,
		pattern, p.RecurringEndDate, p.SeriesID, normalizeMedia(p.MediaURLs),
	}
}

func scanPost(row pgx.Row) (models.Post, error) {
	var (
		post         models.Post
		status       string
		scheduledFor pgtype.Timestamptz
		postedAt     pgtype.Timestamptz
		endDate      pgtype.Timestamptz
		tweetID      pgtype.Text
		lastErr      pgtype.Text
		pattern      pgtype.Text
		seriesID     pgtype.Text
		mediaURLs    []string
	)
	if err := row.Scan(&post.ID, &post.Content, &scheduledFor, &post.IsDraft, &status, &post.CreatedAt, &post.UpdatedAt,
		&postedAt, &tweetID, &lastErr, &pattern, &endDate, &seriesID, &mediaURLs); err != nil {
		return models.Post{}, err
	}
	post.Status = models.Status(status)
	post.CreatedAt = post.CreatedAt.UTC()
	post.UpdatedAt = post.UpdatedAt.UTC()
	post.ScheduledFor = timePtr(scheduledFor)
	post.PostedAt = timePtr(postedAt)
	post.RecurringEndDate = timePtr(endDate)
	post.TweetID = textPtr(tweetID)
	post.Error = textPtr(lastErr)
	post.SeriesID = textPtr(seriesID)
	if pattern.Valid {
		p := models.Pattern(pattern.String)
		post.RecurringPattern = &p
	}
	post.MediaURLs = normalizeMedia(mediaURLs)
	return post, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time.UTC()
		return &v
	}
	return nil
}
