package store

import (
	"context"
	"time"

	"social-post-scheduler/internal/models"
)

// NewPost collects inputs required to insert a post.
type NewPost struct {
	Content          string
	ScheduledFor     *time.Time
	IsDraft          bool
	Status           models.Status
	RecurringPattern *models.Pattern
	RecurringEndDate *time.Time
	SeriesID         *string
	MediaURLs        []string
}

// PostChanges is the full set of user-editable fields. Applying it clears any
// previous delivery error.
type PostChanges struct {
	Content      string
	ScheduledFor *time.Time
	IsDraft      bool
	Status       models.Status
	MediaURLs    []string
}

// Repository is the persistence contract shared by the API, the scheduler and the CLI.
type Repository interface {
	CreatePost(ctx context.Context, p NewPost) (models.Post, error)
	CreateSeries(ctx context.Context, posts []NewPost) ([]models.Post, error)
	GetPost(ctx context.Context, id string) (models.Post, error)
	UpdatePost(ctx context.Context, id string, c PostChanges) (models.Post, error)
	DeletePost(ctx context.Context, id string) error
	ListDrafts(ctx context.Context) ([]models.Post, error)
	ListScheduled(ctx context.Context) ([]models.Post, error)

	FindDue(ctx context.Context, now time.Time, limit int) ([]models.Post, error)
	ClaimForDelivery(ctx context.Context, id string) (bool, error)
	MarkPosted(ctx context.Context, id, tweetID string, postedAt time.Time) error
	MarkFailed(ctx context.Context, id, msg string) error
	FailStaleClaims(ctx context.Context, before time.Time, msg string) (int64, error)

	Ping(ctx context.Context) error
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*Memory)(nil)
)

// failureMessage keeps the failed-implies-error invariant for blank messages.
func failureMessage(msg string) string {
	if msg == "" {
		return "delivery failed"
	}
	return msg
}

func normalizeMedia(urls []string) []string {
	if urls == nil {
		return []string{}
	}
	out := make([]string, len(urls))
	copy(out, urls)
	return out
}
