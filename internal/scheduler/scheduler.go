// Package scheduler delivers due posts and records each outcome on the post.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"social-post-scheduler/internal/lease"
	"social-post-scheduler/internal/media"
	"social-post-scheduler/internal/models"
	"social-post-scheduler/internal/publisher"
	"social-post-scheduler/internal/ratelimit"
	"social-post-scheduler/internal/telemetry"
)

const (
	defaultBatchSize  = 10
	defaultStaleAfter = 10 * time.Minute
	publishBucketKey  = "publish"
	staleClaimMessage = "delivery interrupted before an outcome was recorded"
)

// Store is the slice of the post store the scheduler needs.
type Store interface {
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.Post, error)
	ClaimForDelivery(ctx context.Context, id string) (bool, error)
	MarkPosted(ctx context.Context, id, tweetID string, postedAt time.Time) error
	MarkFailed(ctx context.Context, id, msg string) error
	FailStaleClaims(ctx context.Context, before time.Time, msg string) (int64, error)
}

// MediaPreparer renders an attachment URL into uploadable bytes.
type MediaPreparer interface {
	Prepare(ctx context.Context, key, url string) (media.Asset, error)
}

// Options wires the optional collaborators. Nil collaborators are skipped.
type Options struct {
	BatchSize       int
	StaleClaimAfter time.Duration
	PublishTimeout  time.Duration
	Limiter         ratelimit.Limiter
	Locker          lease.Locker
	Media           MediaPreparer
	Uploader        publisher.MediaUploader
	Logger          logrus.FieldLogger
}

// TickResult summarizes one pass over the due posts.
type TickResult struct {
	Due         int   `json:"due"`
	Posted      int   `json:"posted"`
	Failed      int   `json:"failed"`
	ClaimsLost  int   `json:"claimsLost"`
	Errors      int   `json:"errors"`
	StaleFailed int64 `json:"staleFailed"`
	RateLimited bool  `json:"rateLimited"`
	LeaseBusy   bool  `json:"leaseBusy"`
}

// Scheduler runs ticks. It holds no per-tick state, so concurrent ticks from
// different processes are safe; the store claim decides who delivers.
type Scheduler struct {
	store          Store
	publisher      publisher.Publisher
	batchSize      int
	staleAfter     time.Duration
	publishTimeout time.Duration
	limiter        ratelimit.Limiter
	locker         lease.Locker
	media          MediaPreparer
	uploader       publisher.MediaUploader
	log            logrus.FieldLogger
	now            func() time.Time
}

func New(st Store, pub publisher.Publisher, opts Options) *Scheduler {
	s := &Scheduler{
		store:          st,
		publisher:      pub,
		batchSize:      opts.BatchSize,
		staleAfter:     opts.StaleClaimAfter,
		publishTimeout: opts.PublishTimeout,
		limiter:        opts.Limiter,
		locker:         opts.Locker,
		media:          opts.Media,
		uploader:       opts.Uploader,
		log:            opts.Logger,
		now:            time.Now,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.staleAfter <= 0 {
		s.staleAfter = defaultStaleAfter
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = 30 * time.Second
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	return s
}

// Tick delivers up to one batch of due posts. It never returns an error:
// failures are recorded on the affected post or logged.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	started := time.Now()
	var res TickResult
	outcome := "ok"
	defer func() {
		telemetry.SchedulerTicks.WithLabelValues(outcome).Inc()
		telemetry.TickDuration.Observe(time.Since(started).Seconds())
	}()

	if s.locker != nil {
		held, ok, err := s.locker.Acquire(ctx)
		switch {
		case err != nil:
			// The store claim still prevents double delivery.
			s.log.WithError(err).Warn("tick lease unavailable, continuing without it")
		case !ok:
			res.LeaseBusy = true
			outcome = "lease_busy"
			s.log.Debug("another scheduler holds the tick lease")
			return res
		default:
			defer func() {
				if err := held.Release(context.WithoutCancel(ctx)); err != nil {
					s.log.WithError(err).Warn("release tick lease")
				}
			}()
		}
	}

	now := s.now()
	stale, err := s.store.FailStaleClaims(ctx, now.Add(-s.staleAfter), staleClaimMessage)
	if err != nil {
		s.log.WithError(err).Error("fail stale claims")
	} else if stale > 0 {
		res.StaleFailed = stale
		telemetry.StaleClaims.Add(float64(stale))
		s.log.WithField("count", stale).Warn("marked interrupted deliveries as failed")
	}

	due, err := s.store.FindDue(ctx, now, s.batchSize)
	if err != nil {
		outcome = "store_error"
		s.log.WithError(err).Error("find due posts")
		return res
	}
	res.Due = len(due)

	for _, post := range due {
		if ctx.Err() != nil {
			break
		}
		if !s.allowPublish(ctx) {
			res.RateLimited = true
			outcome = "rate_limited"
			s.log.WithField("remaining", res.Due-res.Posted-res.Failed-res.ClaimsLost-res.Errors).
				Warn("publish rate limit reached, leaving remaining posts scheduled")
			break
		}
		switch s.deliver(ctx, post) {
		case deliveryPosted:
			res.Posted++
		case deliveryFailed:
			res.Failed++
		case deliveryLost:
			res.ClaimsLost++
		default:
			res.Errors++
		}
	}

	if res.Due > 0 {
		s.log.WithFields(logrus.Fields{
			"due":         res.Due,
			"posted":      res.Posted,
			"failed":      res.Failed,
			"claims_lost": res.ClaimsLost,
		}).Info("scheduler tick complete")
	}
	return res
}

func (s *Scheduler) allowPublish(ctx context.Context) bool {
	if s.limiter == nil {
		return true
	}
	allowed, _, err := s.limiter.Allow(ctx, publishBucketKey)
	if err != nil {
		s.log.WithError(err).Warn("publish rate limiter unavailable, allowing")
		return true
	}
	if !allowed {
		telemetry.RateLimitRejects.WithLabelValues("publish").Inc()
	}
	return allowed
}

type deliveryOutcome int

const (
	deliveryError deliveryOutcome = iota
	deliveryPosted
	deliveryFailed
	deliveryLost
)

// deliver claims, publishes and records one post. A panic anywhere after the
// claim is recorded as that post's failure.
func (s *Scheduler) deliver(ctx context.Context, post models.Post) (result deliveryOutcome) {
	log := s.log.WithField("post_id", post.ID)
	claimed := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.WithField("panic", r).Error("delivery panicked")
		result = deliveryError
		if claimed {
			result = s.fail(ctx, log, post.ID, fmt.Sprintf("panic during delivery: %v", r))
		}
	}()

	ok, err := s.store.ClaimForDelivery(ctx, post.ID)
	if err != nil {
		log.WithError(err).Error("claim post")
		return deliveryError
	}
	if !ok {
		telemetry.ClaimsLost.Inc()
		log.Debug("post already claimed")
		return deliveryLost
	}
	claimed = true

	mediaIDs, err := s.uploadMedia(ctx, post)
	if err != nil {
		return s.fail(ctx, log, post.ID, err.Error())
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	receipt, err := s.publisher.Publish(pubCtx, publisher.Message{Content: post.Content, MediaIDs: mediaIDs})
	if err != nil {
		return s.fail(ctx, log, post.ID, err.Error())
	}

	if err := s.store.MarkPosted(context.WithoutCancel(ctx), post.ID, receipt.ID, s.now().UTC()); err != nil {
		// Published but not recorded: the stale sweep will surface it as failed.
		log.WithError(err).WithField("tweet_id", receipt.ID).Error("record posted outcome")
		return deliveryError
	}
	telemetry.PostsPublished.Inc()
	log.WithField("tweet_id", receipt.ID).Info("post published")
	return deliveryPosted
}

func (s *Scheduler) fail(ctx context.Context, log logrus.FieldLogger, id, msg string) deliveryOutcome {
	telemetry.PostsFailed.Inc()
	log.WithField("error", msg).Warn("post delivery failed")
	if err := s.store.MarkFailed(context.WithoutCancel(ctx), id, msg); err != nil {
		log.WithError(err).Error("record failed outcome")
		return deliveryError
	}
	return deliveryFailed
}

func (s *Scheduler) uploadMedia(ctx context.Context, post models.Post) ([]string, error) {
	if len(post.MediaURLs) == 0 {
		return nil, nil
	}
	if s.media == nil || s.uploader == nil {
		return nil, fmt.Errorf("post has media but media delivery is not configured")
	}
	ids := make([]string, 0, len(post.MediaURLs))
	for i, url := range post.MediaURLs {
		asset, err := s.media.Prepare(ctx, fmt.Sprintf("posts/%s/%d", post.ID, i), url)
		if err != nil {
			return nil, fmt.Errorf("prepare media %d: %w", i, err)
		}
		id, err := s.uploader.UploadMedia(ctx, asset.Data, asset.MimeType)
		if err != nil {
			return nil, fmt.Errorf("upload media %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
