package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-post-scheduler/internal/models"
)

func at(hour int) *time.Time {
	t := time.Date(2024, 1, 1, hour, 0, 0, 0, time.UTC)
	return &t
}

func scheduled(content string, when *time.Time) NewPost {
	return NewPost{Content: content, ScheduledFor: when, Status: models.StatusScheduled}
}

func TestMemoryFindDueOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.CreatePost(ctx, scheduled("third", at(11)))
	require.NoError(t, err)
	_, err = m.CreatePost(ctx, scheduled("first", at(9)))
	require.NoError(t, err)
	_, err = m.CreatePost(ctx, scheduled("second", at(10)))
	require.NoError(t, err)
	_, err = m.CreatePost(ctx, scheduled("future", at(15)))
	require.NoError(t, err)
	_, err = m.CreatePost(ctx, NewPost{Content: "draft", ScheduledFor: at(8), IsDraft: true, Status: models.StatusDraft})
	require.NoError(t, err)

	due, err := m.FindDue(ctx, *at(12), 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{due[0].Content, due[1].Content, due[2].Content})

	due, err = m.FindDue(ctx, *at(12), 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	due, err = m.FindDue(ctx, *at(9), 10)
	require.NoError(t, err)
	require.Len(t, due, 1, "scheduled_for equal to now is due")
}

func TestMemoryClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	post, err := m.CreatePost(ctx, scheduled("hello", at(9)))
	require.NoError(t, err)

	ok, err := m.ClaimForDelivery(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ClaimForDelivery(ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	due, _ := m.FindDue(ctx, *at(12), 10)
	assert.Empty(t, due, "sending posts are not due")

	postedAt := *at(9)
	require.NoError(t, m.MarkPosted(ctx, post.ID, "1789", postedAt))

	got, err := m.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPosted, got.Status)
	require.NotNil(t, got.TweetID)
	assert.Equal(t, "1789", *got.TweetID)
	require.NotNil(t, got.PostedAt)
	assert.True(t, got.PostedAt.Equal(postedAt))
	assert.Nil(t, got.Error)

	err = m.MarkFailed(ctx, post.ID, "late")
	assert.True(t, errors.Is(err, models.ErrNotFound), "only sending posts can be marked")
}

func TestMemoryMarkFailedKeepsErrorInvariant(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	post, _ := m.CreatePost(ctx, scheduled("hello", at(9)))
	_, _ = m.ClaimForDelivery(ctx, post.ID)

	require.NoError(t, m.MarkFailed(ctx, post.ID, ""))
	got, _ := m.GetPost(ctx, post.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.NotEmpty(t, *got.Error)
	assert.Nil(t, got.TweetID)
}

func TestMemoryUpdateConflictsAndRequeue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	post, _ := m.CreatePost(ctx, scheduled("hello", at(9)))
	_, _ = m.ClaimForDelivery(ctx, post.ID)

	_, err := m.UpdatePost(ctx, post.ID, PostChanges{Content: "edit", ScheduledFor: at(10), Status: models.StatusScheduled})
	assert.True(t, errors.Is(err, models.ErrConflict))

	require.NoError(t, m.MarkFailed(ctx, post.ID, "rate limited"))
	updated, err := m.UpdatePost(ctx, post.ID, PostChanges{Content: "retry", ScheduledFor: at(10), Status: models.StatusScheduled})
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, updated.Status)
	assert.Nil(t, updated.Error)

	_, err = m.UpdatePost(ctx, "missing", PostChanges{Content: "x", Status: models.StatusDraft, IsDraft: true})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestMemoryCreateSeriesIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	batch := []NewPost{scheduled("a", at(9)), scheduled("a", at(10)), scheduled("a", at(11))}

	m.FailInsertAfter(2)
	_, err := m.CreateSeries(ctx, batch)
	require.Error(t, err)
	all, _ := m.ListScheduled(ctx)
	assert.Empty(t, all)

	created, err := m.CreateSeries(ctx, batch)
	require.NoError(t, err)
	assert.Len(t, created, 3)
	all, _ = m.ListScheduled(ctx)
	assert.Len(t, all, 3)
}

func TestMemoryFailStaleClaims(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := *at(9)
	m.SetClock(func() time.Time { return clock })

	old, _ := m.CreatePost(ctx, scheduled("old", at(9)))
	fresh, _ := m.CreatePost(ctx, scheduled("fresh", at(9)))
	_, _ = m.ClaimForDelivery(ctx, old.ID)
	clock = clock.Add(20 * time.Minute)
	_, _ = m.ClaimForDelivery(ctx, fresh.ID)

	n, err := m.FailStaleClaims(ctx, clock.Add(-10*time.Minute), "interrupted")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := m.GetPost(ctx, old.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	got, _ = m.GetPost(ctx, fresh.ID)
	assert.Equal(t, models.StatusSending, got.Status)
}

func TestMemoryListsAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := *at(8)
	m.SetClock(func() time.Time { return clock })

	d1, _ := m.CreatePost(ctx, NewPost{Content: "older draft", IsDraft: true, Status: models.StatusDraft})
	clock = clock.Add(time.Minute)
	d2, _ := m.CreatePost(ctx, NewPost{Content: "newer draft", IsDraft: true, Status: models.StatusDraft})
	_, _ = m.CreatePost(ctx, scheduled("live", at(9)))

	drafts, err := m.ListDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, d2.ID, drafts[0].ID)
	assert.Equal(t, d1.ID, drafts[1].ID)

	live, err := m.ListScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.NotNil(t, live[0].MediaURLs)

	require.NoError(t, m.DeletePost(ctx, d1.ID))
	assert.True(t, errors.Is(m.DeletePost(ctx, d1.ID), models.ErrNotFound))
	_, err = m.GetPost(ctx, d1.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
