package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"social-post-scheduler/internal/models"
)

// Memory is an in-process Repository with the same state rules as Store.
// It backs tests, dry runs of the CLI, and single-node setups without Postgres.
type Memory struct {
	mu        sync.Mutex
	posts     map[string]*memoryPost
	now       func() time.Time
	failAfter int
}

type memoryPost struct {
	post      models.Post
	claimedAt *time.Time
}

func NewMemory() *Memory {
	return &Memory{posts: make(map[string]*memoryPost), now: time.Now, failAfter: -1}
}

// SetClock overrides the wall clock used for timestamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailInsertAfter makes the next insert batch fail at row index n. It simulates
// a database error part way through a series.
func (m *Memory) FailInsertAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreatePost(_ context.Context, p NewPost) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, err := m.build(p, m.now().UTC(), 0)
	if err != nil {
		return models.Post{}, err
	}
	m.posts[post.ID] = &memoryPost{post: post}
	return clonePost(post), nil
}

func (m *Memory) CreateSeries(_ context.Context, posts []NewPost) ([]models.Post, error) {
	if len(posts) == 0 {
		return nil, fmt.Errorf("%w: empty series", models.ErrInvalidRequest)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	built := make([]models.Post, 0, len(posts))
	for i, p := range posts {
		post, err := m.build(p, now, i)
		if err != nil {
			return nil, fmt.Errorf("insert series post %d: %w", i, err)
		}
		built = append(built, post)
	}
	out := make([]models.Post, 0, len(built))
	for _, post := range built {
		m.posts[post.ID] = &memoryPost{post: post}
		out = append(out, clonePost(post))
	}
	return out, nil
}

func (m *Memory) build(p NewPost, now time.Time, index int) (models.Post, error) {
	if m.failAfter >= 0 && index >= m.failAfter {
		m.failAfter = -1
		return models.Post{}, fmt.Errorf("insert post: simulated failure")
	}
	if strings.TrimSpace(p.Content) == "" {
		return models.Post{}, fmt.Errorf("%w: content is required", models.ErrInvalidRequest)
	}
	return models.Post{
		ID:               uuid.New().String(),
		Content:          p.Content,
		ScheduledFor:     copyTime(p.ScheduledFor),
		IsDraft:          p.IsDraft,
		Status:           p.Status,
		CreatedAt:        now,
		UpdatedAt:        now,
		RecurringPattern: p.RecurringPattern,
		RecurringEndDate: copyTime(p.RecurringEndDate),
		SeriesID:         p.SeriesID,
		MediaURLs:        normalizeMedia(p.MediaURLs),
	}, nil
}

func (m *Memory) GetPost(_ context.Context, id string) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.posts[id]
	if !ok {
		return models.Post{}, fmt.Errorf("get post %s: %w", id, models.ErrNotFound)
	}
	return clonePost(rec.post), nil
}

func (m *Memory) UpdatePost(_ context.Context, id string, c PostChanges) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.posts[id]
	if !ok {
		return models.Post{}, fmt.Errorf("get post %s: %w", id, models.ErrNotFound)
	}
	if !rec.post.Status.Editable() {
		return models.Post{}, fmt.Errorf("update post %s: %w", id, models.ErrConflict)
	}
	rec.post.Content = c.Content
	rec.post.ScheduledFor = copyTime(c.ScheduledFor)
	rec.post.IsDraft = c.IsDraft
	rec.post.Status = c.Status
	rec.post.MediaURLs = normalizeMedia(c.MediaURLs)
	rec.post.Error = nil
	rec.post.UpdatedAt = m.now().UTC()
	rec.claimedAt = nil
	return clonePost(rec.post), nil
}

func (m *Memory) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return fmt.Errorf("delete post %s: %w", id, models.ErrNotFound)
	}
	delete(m.posts, id)
	return nil
}

func (m *Memory) ListDrafts(context.Context) ([]models.Post, error) {
	out := m.filter(func(p models.Post) bool { return p.IsDraft })
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListScheduled(context.Context) ([]models.Post, error) {
	out := m.filter(func(p models.Post) bool { return !p.IsDraft })
	sortBySchedule(out)
	return out, nil
}

func (m *Memory) FindDue(_ context.Context, now time.Time, limit int) ([]models.Post, error) {
	out := m.filter(func(p models.Post) bool {
		return p.Status == models.StatusScheduled && !p.IsDraft && p.ScheduledFor != nil && !p.ScheduledFor.After(now)
	})
	sortBySchedule(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ClaimForDelivery(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.posts[id]
	if !ok || rec.post.Status != models.StatusScheduled || rec.post.IsDraft {
		return false, nil
	}
	now := m.now().UTC()
	rec.post.Status = models.StatusSending
	rec.post.UpdatedAt = now
	rec.claimedAt = &now
	return true, nil
}

func (m *Memory) MarkPosted(_ context.Context, id, tweetID string, postedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.posts[id]
	if !ok || rec.post.Status != models.StatusSending {
		return fmt.Errorf("mark posted %s: %w", id, models.ErrNotFound)
	}
	at := postedAt.UTC()
	rec.post.Status = models.StatusPosted
	rec.post.TweetID = &tweetID
	rec.post.PostedAt = &at
	rec.post.Error = nil
	rec.post.UpdatedAt = m.now().UTC()
	rec.claimedAt = nil
	return nil
}

func (m *Memory) MarkFailed(_ context.Context, id, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.posts[id]
	if !ok || rec.post.Status != models.StatusSending {
		return fmt.Errorf("mark failed %s: %w", id, models.ErrNotFound)
	}
	m.fail(rec, msg)
	return nil
}

func (m *Memory) FailStaleClaims(_ context.Context, before time.Time, msg string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.posts {
		if rec.post.Status == models.StatusSending && rec.claimedAt != nil && rec.claimedAt.Before(before) {
			m.fail(rec, msg)
			n++
		}
	}
	return n, nil
}

func (m *Memory) fail(rec *memoryPost, msg string) {
	errMsg := failureMessage(msg)
	rec.post.Status = models.StatusFailed
	rec.post.Error = &errMsg
	rec.post.TweetID = nil
	rec.post.UpdatedAt = m.now().UTC()
	rec.claimedAt = nil
}

func (m *Memory) filter(keep func(models.Post) bool) []models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Post{}
	for _, rec := range m.posts {
		if keep(rec.post) {
			out = append(out, clonePost(rec.post))
		}
	}
	return out
}

// sortBySchedule orders by scheduled_for ascending with unscheduled posts last.
func sortBySchedule(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i].ScheduledFor, posts[j].ScheduledFor
		switch {
		case a == nil && b == nil:
			return posts[i].ID < posts[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return posts[i].ID < posts[j].ID
	})
}

func clonePost(p models.Post) models.Post {
	p.ScheduledFor = copyTime(p.ScheduledFor)
	p.PostedAt = copyTime(p.PostedAt)
	p.RecurringEndDate = copyTime(p.RecurringEndDate)
	if p.TweetID != nil {
		v := *p.TweetID
		p.TweetID = &v
	}
	if p.Error != nil {
		v := *p.Error
		p.Error = &v
	}
	if p.SeriesID != nil {
		v := *p.SeriesID
		p.SeriesID = &v
	}
	if p.RecurringPattern != nil {
		v := *p.RecurringPattern
		p.RecurringPattern = &v
	}
	p.MediaURLs = normalizeMedia(p.MediaURLs)
	return p
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
