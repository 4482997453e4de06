package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	PostsCreated     = prometheus.NewCounter(prometheus.CounterOpts{Name: "posts_created_total", Help: "Post rows inserted, including every row of a series"})
	PostsPublished   = prometheus.NewCounter(prometheus.CounterOpts{Name: "posts_published_total", Help: "Posts delivered successfully"})
	PostsFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "posts_failed_total", Help: "Posts whose delivery failed"})
	ClaimsLost       = prometheus.NewCounter(prometheus.CounterOpts{Name: "scheduler_claims_lost_total", Help: "Due posts already claimed by another tick"})
	StaleClaims      = prometheus.NewCounter(prometheus.CounterOpts{Name: "scheduler_stale_claims_total", Help: "Posts stuck in sending that were marked failed"})
	SchedulerTicks   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "scheduler_ticks_total", Help: "Scheduler ticks by outcome"}, []string{"outcome"})
	TickDuration     = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "scheduler_tick_duration_seconds", Help: "Wall time of one scheduler tick", Buckets: prometheus.DefBuckets})
	ProviderAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "provider_attempts_total", Help: "Text generation calls by provider and outcome"}, []string{"provider", "outcome"})
	RateLimitRejects = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rate_limit_rejects_total", Help: "Requests rejected by a token bucket"}, []string{"bucket"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			PostsCreated,
			PostsPublished,
			PostsFailed,
			ClaimsLost,
			StaleClaims,
			SchedulerTicks,
			TickDuration,
			ProviderAttempts,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
