package scheduler

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Ticker is anything that can run one scheduler pass.
type Ticker interface {
	Tick(ctx context.Context) TickResult
}

// Runner owns the periodic loop. The zero value is not usable; call NewRunner.
type Runner struct {
	ticker   Ticker
	interval time.Duration
	log      logrus.FieldLogger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewRunner(t Ticker, interval time.Duration, log logrus.FieldLogger) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Runner{ticker: t, interval: interval, log: log}
}

// Start launches the loop. The first tick runs immediately. Calling Start
// while the loop is running does nothing and returns false.
func (r *Runner) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(ctx, r.stop, r.done)
	r.log.WithField("interval", r.interval.String()).Info("post scheduler started")
	return true
}

// Stop prevents further ticks and waits for the loop to exit. A tick already
// in progress finishes normally.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	<-done
	r.log.Info("post scheduler stopped")
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) loop(ctx context.Context, stop, done chan struct{}) {
	defer func() {
		r.mu.Lock()
		if r.done == done {
			r.running = false
		}
		r.mu.Unlock()
		close(done)
	}()

	// Ticks outlive Stop and parent cancellation so that a claimed post always
	// gets its outcome recorded.
	tickCtx := context.WithoutCancel(ctx)
	r.safeTick(tickCtx)

	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			select {
			case <-stop:
				return
			default:
			}
			r.safeTick(tickCtx)
		}
	}
}

func (r *Runner) safeTick(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.log.WithField("panic", p).Error("scheduler tick panicked")
		}
	}()
	r.ticker.Tick(ctx)
}
