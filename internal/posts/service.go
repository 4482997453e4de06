// Package posts implements the compose and edit flow on top of the store.
package posts

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"social-post-scheduler/internal/models"
	"social-post-scheduler/internal/recurrence"
	"social-post-scheduler/internal/store"
	"social-post-scheduler/internal/telemetry"
)

// MaxContentLength is the platform's per-post character limit.
const MaxContentLength = 280

// pastGrace tolerates client clock skew on "schedule for now" submissions.
const pastGrace = time.Minute

var mediaURLRe = regexp.MustCompile(`^https?://\S+$`)

// CreateRequest is a compose submission.
type CreateRequest struct {
	Content          string          `json:"content"`
	ScheduledFor     *time.Time      `json:"scheduledFor"`
	IsDraft          bool            `json:"isDraft"`
	RecurringPattern *models.Pattern `json:"recurringPattern"`
	RecurringEndDate *time.Time      `json:"recurringEndDate"`
	MediaURLs        []string        `json:"mediaUrls"`
}

// UpdateRequest replaces the editable fields of one post.
type UpdateRequest struct {
	Content      string     `json:"content"`
	ScheduledFor *time.Time `json:"scheduledFor"`
	IsDraft      bool       `json:"isDraft"`
	MediaURLs    []string   `json:"mediaUrls"`
}

// CreateResult carries the first stored post and the number of rows written.
type CreateResult struct {
	Post       models.Post
	SeriesSize int
}

// Service validates submissions, derives lifecycle state, and expands
// recurring submissions into a series.
type Service struct {
	repo     store.Repository
	expander recurrence.Expander
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(repo store.Repository, expander recurrence.Expander, log logrus.FieldLogger) *Service {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Service{repo: repo, expander: expander, log: log, now: time.Now}
}

// Create stores a post, or the whole series when a recurrence rule is given.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	now := s.now().UTC()
	if err := validateCreate(ctx, req, now); err != nil {
		return CreateResult{}, err
	}

	status, when := models.DeriveStatus(req.IsDraft, req.ScheduledFor, now)
	if req.RecurringPattern == nil {
		post, err := s.repo.CreatePost(ctx, store.NewPost{
			Content:      req.Content,
			ScheduledFor: when,
			IsDraft:      req.IsDraft,
			Status:       status,
			MediaURLs:    req.MediaURLs,
		})
		if err != nil {
			return CreateResult{}, err
		}
		telemetry.PostsCreated.Inc()
		return CreateResult{Post: post, SeriesSize: 1}, nil
	}

	occurrences, err := s.expander.Expand(req.Content, *when, *req.RecurringPattern, *req.RecurringEndDate)
	if err != nil {
		return CreateResult{}, err
	}
	seriesID := uuid.New().String()
	batch := make([]store.NewPost, 0, len(occurrences))
	for _, occ := range occurrences {
		scheduledFor := occ.ScheduledFor
		pattern := occ.Pattern
		end := occ.EndDate
		batch = append(batch, store.NewPost{
			Content:          occ.Content,
			ScheduledFor:     &scheduledFor,
			Status:           models.StatusScheduled,
			RecurringPattern: &pattern,
			RecurringEndDate: &end,
			SeriesID:         &seriesID,
			MediaURLs:        req.MediaURLs,
		})
	}
	created, err := s.repo.CreateSeries(ctx, batch)
	if err != nil {
		return CreateResult{}, err
	}
	telemetry.PostsCreated.Add(float64(len(created)))
	s.log.WithFields(logrus.Fields{
		"series_id": seriesID,
		"pattern":   *req.RecurringPattern,
		"posts":     len(created),
	}).Info("recurring series created")
	return CreateResult{Post: created[0], SeriesSize: len(created)}, nil
}

// Update applies a user edit. Editing a failed post puts it back in the queue.
// Posts belonging to a series stay scheduled and within the series end date.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (models.Post, error) {
	existing, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	now := s.now().UTC()
	recurring := existing.RecurringPattern != nil
	err = validation.ValidateStructWithContext(ctx, &req,
		validation.Field(&req.Content, validation.Required, validation.By(notBlank), validation.RuneLength(1, MaxContentLength)),
		validation.Field(&req.ScheduledFor,
			validation.When(!req.IsDraft, validation.By(notInPast(now))),
			validation.When(recurring && existing.RecurringEndDate != nil, validation.By(notAfter(existing.RecurringEndDate, now)))),
		validation.Field(&req.IsDraft, validation.When(recurring, validation.Empty.Error("recurring posts cannot be drafts"))),
		validation.Field(&req.MediaURLs, validation.Length(0, models.MaxMediaPerPost), validation.Each(validation.Required, validation.Match(mediaURLRe))),
	)
	if err != nil {
		return models.Post{}, invalid(err)
	}

	status, when := models.DeriveStatus(req.IsDraft, req.ScheduledFor, now)
	post, err := s.repo.UpdatePost(ctx, id, store.PostChanges{
		Content:      req.Content,
		ScheduledFor: when,
		IsDraft:      req.IsDraft,
		Status:       status,
		MediaURLs:    req.MediaURLs,
	})
	if err != nil {
		return models.Post{}, err
	}
	s.log.WithFields(logrus.Fields{"post_id": id, "status": post.Status}).Debug("post updated")
	return post, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.Post, error) {
	return s.repo.GetPost(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeletePost(ctx, id)
}

func (s *Service) ListDrafts(ctx context.Context) ([]models.Post, error) {
	return s.repo.ListDrafts(ctx)
}

func (s *Service) ListScheduled(ctx context.Context) ([]models.Post, error) {
	return s.repo.ListScheduled(ctx)
}

func validateCreate(ctx context.Context, req CreateRequest, now time.Time) error {
	recurring := req.RecurringPattern != nil
	err := validation.ValidateStructWithContext(ctx, &req,
		validation.Field(&req.Content, validation.Required, validation.By(notBlank), validation.RuneLength(1, MaxContentLength)),
		validation.Field(&req.ScheduledFor, validation.When(!req.IsDraft, validation.By(notInPast(now)))),
		validation.Field(&req.IsDraft, validation.When(recurring, validation.Empty.Error("recurring posts cannot be drafts"))),
		validation.Field(&req.RecurringPattern, validation.When(recurring, validation.By(validPattern))),
		validation.Field(&req.RecurringEndDate, validation.When(recurring, validation.Required.Error("is required for recurring posts"))),
		validation.Field(&req.MediaURLs, validation.Length(0, models.MaxMediaPerPost), validation.Each(validation.Required, validation.Match(mediaURLRe))),
	)
	if err != nil {
		return invalid(err)
	}
	return nil
}

func notInPast(now time.Time) validation.RuleFunc {
	return func(value interface{}) error {
		t, ok := value.(*time.Time)
		if !ok || t == nil {
			return nil
		}
		if t.Before(now.Add(-pastGrace)) {
			return validation.NewError("validation_in_past", "must not be in the past")
		}
		return nil
	}
}

// notAfter bounds a schedule time by a series end date. A missing time means
// "now".
func notAfter(end *time.Time, now time.Time) validation.RuleFunc {
	return func(value interface{}) error {
		t, _ := value.(*time.Time)
		at := now
		if t != nil {
			at = *t
		}
		if at.After(*end) {
			return validation.NewError("validation_after_end", "must not be after the recurrence end date")
		}
		return nil
	}
}

func notBlank(value interface{}) error {
	if s, _ := value.(string); strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "must not be blank")
	}
	return nil
}

func validPattern(value interface{}) error {
	p, ok := value.(*models.Pattern)
	if !ok || p == nil || !p.Valid() {
		return validation.NewError("validation_pattern", "must be daily, weekly or monthly")
	}
	return nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidRequest, strings.TrimSpace(err.Error()))
}
