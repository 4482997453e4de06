package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-post-scheduler/internal/models"
)

// Runs against a disposable database: POSTGRES_TEST_DSN=postgres://... go test ./internal/store
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.RunMigrations(ctx))
	_, err = s.pool.Exec(ctx, `TRUNCATE posts`)
	require.NoError(t, err)
	return s
}

func TestPostgresDeliveryLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	due := time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond)

	post, err := s.CreatePost(ctx, NewPost{Content: "hello #go", ScheduledFor: &due, Status: models.StatusScheduled})
	require.NoError(t, err)
	assert.Equal(t, []string{}, post.MediaURLs)

	found, err := s.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	ok, err := s.ClaimForDelivery(ctx, post.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.ClaimForDelivery(ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.UpdatePost(ctx, post.ID, PostChanges{Content: "edit", ScheduledFor: &due, Status: models.StatusScheduled})
	assert.True(t, errors.Is(err, models.ErrConflict))

	require.NoError(t, s.MarkPosted(ctx, post.ID, "1789", time.Now()))
	got, err := s.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPosted, got.Status)
	require.NotNil(t, got.TweetID)
	assert.Equal(t, "1789", *got.TweetID)
}

func TestPostgresSeriesAndStaleClaims(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	end := start.AddDate(0, 0, 2)
	pattern := models.PatternDaily
	series := "series-1"

	var batch []NewPost
	for i := 0; i < 3; i++ {
		when := start.AddDate(0, 0, i)
		batch = append(batch, NewPost{Content: "daily", ScheduledFor: &when, Status: models.StatusScheduled,
			RecurringPattern: &pattern, RecurringEndDate: &end, SeriesID: &series})
	}
	created, err := s.CreateSeries(ctx, batch)
	require.NoError(t, err)
	require.Len(t, created, 3)
	require.NotNil(t, created[2].RecurringPattern)
	assert.Equal(t, models.PatternDaily, *created[2].RecurringPattern)

	ok, err := s.ClaimForDelivery(ctx, created[0].ID)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.FailStaleClaims(ctx, time.Now().Add(time.Minute), "interrupted")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetPost(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)

	require.NoError(t, s.DeletePost(ctx, created[1].ID))
	assert.True(t, errors.Is(s.DeletePost(ctx, created[1].ID), models.ErrNotFound))
}

func TestPostgresUpdatePostStates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	later := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)

	_, err := s.UpdatePost(ctx, "missing", PostChanges{Content: "x", IsDraft: true, Status: models.StatusDraft})
	assert.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)

	draft, err := s.CreatePost(ctx, NewPost{Content: "rough", IsDraft: true, Status: models.StatusDraft})
	require.NoError(t, err)
	updated, err := s.UpdatePost(ctx, draft.ID, PostChanges{Content: "ready", ScheduledFor: &later, Status: models.StatusScheduled})
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, updated.Status)
	assert.Equal(t, "ready", updated.Content)
	assert.False(t, updated.IsDraft)

	ok, err := s.ClaimForDelivery(ctx, draft.ID)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = s.UpdatePost(ctx, draft.ID, PostChanges{Content: "too late", IsDraft: true, Status: models.StatusDraft})
	assert.True(t, errors.Is(err, models.ErrConflict), "got %v", err)

	got, err := s.GetPost(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSending, got.Status)
	assert.Equal(t, "ready", got.Content)
}

func TestPostgresMigrationsRecordVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RunMigrations(ctx))

	var n int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations WHERE version = '001_posts'`).Scan(&n))
	assert.Equal(t, 1, n)
}
