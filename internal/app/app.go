// Package app assembles the components shared by the binaries from config.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"social-post-scheduler/internal/assist"
	"social-post-scheduler/internal/config"
	"social-post-scheduler/internal/lease"
	"social-post-scheduler/internal/media"
	"social-post-scheduler/internal/provider"
	"social-post-scheduler/internal/publisher"
	"social-post-scheduler/internal/ratelimit"
	"social-post-scheduler/internal/scheduler"
)

const tickLeaseKey = "lock:scheduler:tick"

// NewOrchestrator builds the provider registry and the fallback orchestrator.
func NewOrchestrator(cfg config.Config, log logrus.FieldLogger) *assist.Orchestrator {
	reg := provider.NewDefaultRegistry(provider.Keys{
		Gemini:   cfg.GeminiAPIKey,
		Groq:     cfg.GroqAPIKey,
		XAI:      cfg.XAIAPIKey,
		Cerebras: cfg.CerebrasAPIKey,
	})
	return assist.New(reg, assist.Options{
		MaxRetries:     cfg.ProviderMaxRetries,
		BackoffInitial: cfg.ProviderBackoffInitial,
		BackoffMax:     cfg.ProviderBackoffMax,
		CallTimeout:    cfg.ProviderTimeout,
		Logger:         log,
	})
}

// NewTwitter builds the publisher from the TWITTER_* settings.
func NewTwitter(cfg config.Config) (*publisher.TwitterClient, error) {
	return publisher.NewTwitterClient(publisher.TwitterConfig{
		APIBaseURL:        cfg.TwitterAPIBaseURL,
		UploadURL:         cfg.TwitterUploadURL,
		APIKey:            cfg.TwitterAPIKey,
		APISecret:         cfg.TwitterAPISecret,
		AccessToken:       cfg.TwitterAccessToken,
		AccessTokenSecret: cfg.TwitterAccessTokenSecret,
		Timeout:           cfg.PublishTimeout,
		Stub:              cfg.PublisherStub,
	})
}

// NewLimiter returns a Redis token bucket, or an in-process one when rdb is nil.
func NewLimiter(rdb *redis.Client, prefix string, capacity int, refill float64) ratelimit.Limiter {
	if rdb == nil {
		return ratelimit.NewMemoryBucket(capacity, refill)
	}
	return ratelimit.NewTokenBucket(rdb, prefix, capacity, refill, time.Hour)
}

// NewScheduler wires the delivery pipeline. rdb may be nil, in which case the
// tick lease is off and the publish bucket is process-local.
func NewScheduler(ctx context.Context, cfg config.Config, st scheduler.Store, rdb *redis.Client, log logrus.FieldLogger) (*scheduler.Scheduler, error) {
	tw, err := NewTwitter(cfg)
	if err != nil {
		return nil, fmt.Errorf("twitter client: %w", err)
	}
	prep, err := media.NewPreparer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("media preparer: %w", err)
	}

	opts := scheduler.Options{
		BatchSize:       cfg.SchedulerBatchSize,
		StaleClaimAfter: cfg.StaleClaimAfter,
		PublishTimeout:  cfg.PublishTimeout,
		Limiter:         NewLimiter(rdb, "rl:publish", cfg.PublishRateLimitCapacity, cfg.PublishRateLimitRefill),
		Media:           prep,
		Uploader:        tw,
		Logger:          log,
	}
	if rdb != nil && cfg.UseTickLease {
		opts.Locker = lease.NewRedisLocker(rdb, tickLeaseKey, cfg.TickLeaseTTL)
	}
	return scheduler.New(st, tw, opts), nil
}
