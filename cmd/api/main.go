package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social-post-scheduler/internal/api"
	"social-post-scheduler/internal/app"
	"social-post-scheduler/internal/config"
	"social-post-scheduler/internal/lease"
	"social-post-scheduler/internal/logging"
	"social-post-scheduler/internal/posts"
	"social-post-scheduler/internal/recurrence"
	"social-post-scheduler/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.WithError(err).Fatal("migrations")
	}

	rdb := lease.NewRedisClient(cfg)
	defer rdb.Close()
	limiter := app.NewLimiter(rdb, "rl:ai", cfg.AIRateLimitCapacity, cfg.AIRateLimitRefill)

	svc := posts.NewService(st, recurrence.Expander{MaxOccurrences: cfg.MaxSeriesLength}, log)
	server := api.New(svc, app.NewOrchestrator(cfg, log), api.Options{
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.WithField("port", cfg.HTTPPort).Info("api listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	log.Info("api stopped")
}
