package checker

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	mTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadswitch_scheduler_ticks_total", Help: "Scheduled inactivity checks started.",
	})
	mTickErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadswitch_scheduler_errors_total", Help: "Scheduled inactivity checks that failed.",
	})
)

type Job interface {
	Run(ctx context.Context) (*Summary, error)
}

// Runner triggers Job on a fixed interval.
type Runner struct {
	Log      *zap.Logger
	Job      Job
	Interval time.Duration
}

func NewRunner(log *zap.Logger, job Job, interval time.Duration) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Log: log.With(zap.String("component", "checker.runner")), Job: job, Interval: interval}
}

func (r *Runner) tick(ctx context.Context) {
	mTicks.Inc()
	s, err := r.Job.Run(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		r.Log.Debug("previous run still holds the lock")
	case err != nil:
		mTickErr.Inc()
		r.Log.Warn("scheduled inactivity check failed", zap.Error(err))
	default:
		r.Log.Debug("scheduled inactivity check",
			zap.Int("inactive_users", s.InactiveUsers),
			zap.Int("notifications_sent", s.NotificationsSent),
		)
	}
}

// Run blocks until ctx is done. A non-positive interval disables the schedule.
func (r *Runner) Run(ctx context.Context) error {
	if r.Interval <= 0 {
		r.Log.Info("schedule disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
