package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"social-post-scheduler/internal/app"
	"social-post-scheduler/internal/config"
	"social-post-scheduler/internal/lease"
	"social-post-scheduler/internal/logging"
	"social-post-scheduler/internal/scheduler"
	"social-post-scheduler/internal/store"
	"social-post-scheduler/internal/telemetry"
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

	sched, err := app.NewScheduler(ctx, cfg, st, rdb, log)
	if err != nil {
		log.WithError(err).Fatal("init scheduler")
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()

	runner := scheduler.NewRunner(sched, cfg.SchedulerInterval, log)
	runner.Start(ctx)
	log.WithFields(logrus.Fields{
		"batch_size":  cfg.SchedulerBatchSize,
		"stale_after": cfg.StaleClaimAfter.String(),
		"stub":        cfg.PublisherStub,
	}).Info("scheduler running")

	<-ctx.Done()
	runner.Stop()
}
