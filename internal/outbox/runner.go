package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Deadswitch/internal/domain/outbox"
	"github.com/NordCoder/Deadswitch/internal/obs"
	"github.com/NordCoder/Deadswitch/internal/obs/retry"
)

var (
	mPicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_picked_total", Help: "Messages picked into processing.",
	})
	mOk = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_processed_ok_total", Help: "Messages processed successfully.",
	}, []string{"kind"})
	mErr = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_processed_err_total", Help: "Messages left for a later pick.",
	}, []string{"kind"})
	mDead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dead_total", Help: "Messages given up on.",
	}, []string{"kind"})
	mRepoErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_repo_errors_total", Help: "Outbox table errors.",
	})
	mPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_purged_total", Help: "Finished rows deleted by retention.",
	})
	mTickDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "outbox_tick_duration_seconds", Help: "Tick duration.",
		Buckets: prometheus.DefBuckets,
	})
	mBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_last_batch_size", Help: "Size of last picked batch.",
	})
)

// Runner drains the outbox table into the configured handlers.
type Runner struct {
	log      *zap.Logger
	repo     outbox.Repository
	dispatch outbox.GlobalHandler
	now      func() time.Time

	workers       int
	batchSize     int
	waitTime      time.Duration
	inProgressTTL time.Duration
	maxAttempts   int
	retention     time.Duration

	wg sync.WaitGroup
}

func NewOutboxRunner(
	log *zap.Logger,
	repo outbox.Repository,
	dispatch outbox.GlobalHandler,
	workers int,
	batchSize int,
	waitTime time.Duration,
	inProgressTTL time.Duration,
) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		log: log.With(zap.String("component", "outbox.runner")), repo: repo, dispatch: dispatch, now: time.Now,
		workers: workers, batchSize: batchSize, waitTime: waitTime, inProgressTTL: inProgressTTL,
	}
}

// WithMaxAttempts dead-letters a message once it has failed on n picks. Zero keeps retrying forever.
func (r *Runner) WithMaxAttempts(n int) *Runner {
	r.maxAttempts = n
	return r
}

// WithRetention makes Start also purge finished rows older than d.
func (r *Runner) WithRetention(d time.Duration) *Runner {
	r.retention = d
	return r
}

func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	if r.retention > 0 {
		r.wg.Add(1)
		go r.janitor(ctx)
	}
}

// Wait blocks until every goroutine started by Start has observed ctx cancellation.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	r.log.Info("outbox worker started", zap.Duration("wait", r.waitTime))

	ticker := time.NewTicker(r.waitTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox worker stop")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

func (r *Runner) janitor(ctx context.Context) {
	defer r.wg.Done()

	every := r.retention / 4
	if every > time.Hour {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Purge(ctx); err != nil {
				r.log.Warn("outbox purge", zap.Error(err))
			}
		}
	}
}

// Purge removes finished rows older than the retention window.
func (r *Runner) Purge(ctx context.Context) (int64, error) {
	if r.retention <= 0 {
		return 0, nil
	}
	n, err := r.repo.Purge(ctx, r.now().Add(-r.retention))
	if err != nil {
		mRepoErr.Inc()
		return 0, err
	}
	mPurged.Add(float64(n))
	if n > 0 {
		r.log.Debug("outbox purged", zap.Int64("rows", n))
	}
	return n, nil
}

// Tick picks one batch, dispatches each message and records the outcome per message.
func (r *Runner) Tick(ctx context.Context) {
	t0 := time.Now()
	defer func() { mTickDur.Observe(time.Since(t0).Seconds()) }()
	tr := otel.Tracer("outbox.runner")

	ctxSpan, span := tr.Start(ctx, "outbox.tick")
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch.limit", r.batchSize),
		attribute.String("in_progress_ttl", r.inProgressTTL.String()),
	)

	messages, err := r.repo.PickBatch(ctxSpan, r.batchSize, r.inProgressTTL)
	if err != nil {
		span.RecordError(err)
		mRepoErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("outbox pick error", zap.Error(err))
		return
	}
	mPicked.Add(float64(len(messages)))
	mBatchSize.Set(float64(len(messages)))

	var okKeys, deadKeys []string
	for _, m := range messages {
		kind := m.Kind.String()
		msgCtx, msgSpan := tr.Start(ctxSpan, "outbox.dispatch",
			trace.WithAttributes(
				attribute.String("outbox.key", m.IdempotencyKey),
				attribute.String("outbox.kind", kind),
				attribute.Int("outbox.attempts", m.Attempts),
			),
		)
		err := r.handle(msgCtx, m)
		switch {
		case err == nil:
			okKeys = append(okKeys, m.IdempotencyKey)
			mOk.WithLabelValues(kind).Inc()
		case errors.Is(err, retry.ErrPermanent) || (r.maxAttempts > 0 && m.Attempts >= r.maxAttempts):
			msgSpan.RecordError(err)
			deadKeys = append(deadKeys, m.IdempotencyKey)
			mDead.WithLabelValues(kind).Inc()
			obs.WithTrace(msgCtx, r.log).Error("outbox message dead-lettered",
				zap.String("key", m.IdempotencyKey), zap.String("kind", kind),
				zap.Int("attempts", m.Attempts), zap.Error(err))
		default:
			msgSpan.RecordError(err)
			mErr.WithLabelValues(kind).Inc()
			obs.WithTrace(msgCtx, r.log).Warn("outbox handler error",
				zap.String("key", m.IdempotencyKey), zap.String("kind", kind),
				zap.Int("attempts", m.Attempts), zap.Error(err))
		}
		msgSpan.End()
	}

	if err := r.repo.MarkSuccess(ctxSpan, okKeys); err != nil {
		span.RecordError(err)
		mRepoErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("mark success error", zap.Error(err))
	}
	if err := r.repo.MarkDead(ctxSpan, deadKeys); err != nil {
		span.RecordError(err)
		mRepoErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("mark dead error", zap.Error(err))
	}
}

func (r *Runner) handle(ctx context.Context, m outbox.Message) error {
	h, err := r.dispatch(m.Kind)
	if err != nil {
		// a kind nobody handles will not become handleable on retry
		return retry.Permanent(err)
	}
	return h(ctx, m.Data)
}
