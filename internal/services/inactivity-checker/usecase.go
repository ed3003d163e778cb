package checker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/NordCoder/Deadswitch/internal/domain/contact"
	"github.com/NordCoder/Deadswitch/internal/domain/notification"
	"github.com/NordCoder/Deadswitch/internal/lock"
	"github.com/NordCoder/Deadswitch/internal/obs"
)

var ErrRunInProgress = errors.New("inactivity check already running")

var (
	mRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deadswitch_runs_total", Help: "Dispatch runs by outcome.",
	}, []string{"outcome"})
	mRunDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "deadswitch_run_duration_seconds", Help: "Dispatch run duration.",
		Buckets: prometheus.DefBuckets,
	})
	mInactive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deadswitch_inactive_users", Help: "Inactive users found by the last run.",
	})
	mDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deadswitch_deliveries_total", Help: "Delivery attempts by status.",
	}, []string{"status"})
	mUsersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deadswitch_users_skipped_total", Help: "Inactive users skipped by reason.",
	}, []string{"reason"})
	mLogAppendErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadswitch_log_append_errors_total", Help: "Delivery attempts whose log entry could not be written.",
	})
)

type Settings struct {
	Threshold   time.Duration
	Workers     int
	SendTimeout time.Duration
	RunTimeout  time.Duration
	Location    *time.Location
	LockKey     string
	LockTTL     time.Duration
}

type Result struct {
	UserID       uuid.UUID           `json:"userId"`
	ContactEmail string              `json:"contactEmail"`
	Status       notification.Status `json:"status"`
}

type Summary struct {
	InactiveUsers     int      `json:"inactiveUsers"`
	NotificationsSent int      `json:"notificationsSent"`
	Notifications     []Result `json:"notifications"`
	Partial           bool     `json:"partial,omitempty"`
}

// Dispatcher runs one inactivity pass. A nil Channel records every attempt as skipped_no_channel.
type Dispatcher struct {
	CheckIns CheckInSource
	Roster   Roster
	Dedup    *Deduplicator
	Contacts *ContactResolver
	Log      LogWriter
	Channel  notification.EmailSender
	Clock    notification.Clock
	Locker   lock.Locker
	Limiter  *rate.Limiter
	Cfg      Settings
	Logger   *zap.Logger
}

func (d *Dispatcher) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	defer func() { mRunDur.Observe(time.Since(start).Seconds()) }()

	if d.Locker != nil {
		release, err := d.Locker.Acquire(ctx, d.Cfg.LockKey, d.Cfg.LockTTL)
		if errors.Is(err, lock.ErrNotAcquired) {
			mRuns.WithLabelValues("locked").Inc()
			return nil, ErrRunInProgress
		}
		if err != nil {
			mRuns.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(rctx); err != nil {
				d.logger().Warn("release run lock", zap.Error(err))
			}
		}()
	}

	if d.Cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Cfg.RunTimeout)
		defer cancel()
	}

	s, err := d.run(ctx)
	switch {
	case err != nil:
		mRuns.WithLabelValues("error").Inc()
	case s.Partial:
		mRuns.WithLabelValues("partial").Inc()
	default:
		mRuns.WithLabelValues("ok").Inc()
	}
	return s, err
}

func (d *Dispatcher) run(ctx context.Context) (*Summary, error) {
	tr := otel.Tracer("checker.dispatch")
	ctx, span := tr.Start(ctx, "dispatch.run")
	defer span.End()
	log := obs.WithTrace(ctx, d.logger())

	now := d.clock().Now()

	rows, err := d.CheckIns.LatestPerUser(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load check-ins: %w", err)
	}
	candidates := Detect(LatestByUser(rows), now, d.Cfg.Threshold)

	users, err := d.withEmails(ctx, candidates, log)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("resolve user emails: %w", err)
	}
	mInactive.Set(float64(len(users)))
	span.SetAttributes(attribute.Int("users.inactive", len(users)))

	workers := d.Cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	perUser := make([][]Result, len(users))
	complete := make([]bool, len(users))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, u := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			perUser[i], complete[i] = d.processUser(ctx, u, now)
			return nil
		})
	}
	_ = g.Wait()

	s := &Summary{InactiveUsers: len(users), Notifications: make([]Result, 0)}
	for i := range users {
		if !complete[i] {
			s.Partial = true
		}
		for _, r := range perUser[i] {
			if r.Status == notification.StatusSent {
				s.NotificationsSent++
			}
			s.Notifications = append(s.Notifications, r)
		}
	}

	span.SetAttributes(
		attribute.Int("notifications.sent", s.NotificationsSent),
		attribute.Int("notifications.total", len(s.Notifications)),
		attribute.Bool("partial", s.Partial),
	)
	log.Info("inactivity check finished",
		zap.Int("inactive_users", s.InactiveUsers),
		zap.Int("notifications_sent", s.NotificationsSent),
		zap.Int("attempts", len(s.Notifications)),
		zap.Bool("partial", s.Partial),
	)
	return s, nil
}

// withEmails resolves every candidate's email in one roster query. Candidates without an email
// are dropped. The query is the whole roster for the run, so its failure is returned.
func (d *Dispatcher) withEmails(ctx context.Context, candidates []Candidate, log *zap.Logger) ([]InactiveUser, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.UserID
	}
	emails, err := d.Roster.EmailsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]InactiveUser, 0, len(candidates))
	for _, c := range candidates {
		email := emails[c.UserID]
		if email == "" {
			mUsersSkipped.WithLabelValues("no_email").Inc()
			log.Warn("inactive user has no email, dropped", zap.String("user_id", c.UserID.String()))
			continue
		}
		out = append(out, InactiveUser{
			UserID:      c.UserID,
			Email:       email,
			LastCheckIn: c.LastCheckIn,
			Hours:       c.Hours,
		})
	}
	return out, nil
}

// processUser delivers to each contact of u in order. The bool is false when ctx ended before the user was finished.
func (d *Dispatcher) processUser(ctx context.Context, u InactiveUser, now time.Time) ([]Result, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	ctx, span := otel.Tracer("checker.dispatch").Start(ctx, "dispatch.user",
		trace.WithAttributes(attribute.String("user.id", u.UserID.String())),
	)
	defer span.End()
	log := obs.WithTrace(ctx, d.logger()).With(zap.String("user_id", u.UserID.String()))

	suppressed, err := d.Dedup.Suppressed(ctx, u.UserID, now)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		span.RecordError(err)
		mUsersSkipped.WithLabelValues("dedup_error").Inc()
		log.Warn("dedup lookup failed, user skipped", zap.Error(err))
		return nil, true
	}
	if suppressed {
		mUsersSkipped.WithLabelValues("suppressed").Inc()
		log.Info("notified within the dedup window, user skipped")
		return nil, true
	}

	contacts, err := d.Contacts.Resolve(ctx, u.UserID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		span.RecordError(err)
		mUsersSkipped.WithLabelValues("contacts_error").Inc()
		log.Warn("contact lookup failed, user skipped", zap.Error(err))
		return nil, true
	}
	if len(contacts) == 0 {
		mUsersSkipped.WithLabelValues("no_contacts").Inc()
		log.Info("no emergency contacts, user skipped")
		return nil, true
	}

	out := make([]Result, 0, len(contacts))
	for _, c := range contacts {
		if ctx.Err() != nil {
			return out, false
		}
		r, ok := d.deliver(ctx, u, c, log)
		if !ok {
			return out, false
		}
		out = append(out, r)
	}
	return out, true
}

// deliver makes one attempt and writes its log entry before returning.
// It returns false only when ctx ended before the attempt was made.
func (d *Dispatcher) deliver(ctx context.Context, u InactiveUser, c contact.Contact, log *zap.Logger) (Result, bool) {
	res := Result{UserID: u.UserID, ContactEmail: c.Email}
	if d.Channel == nil {
		res.Status = notification.StatusSkippedNoChannel
		mDeliveries.WithLabelValues(string(res.Status)).Inc()
		log.Info("no notification channel configured", zap.String("contact_email", c.Email))
		return res, true
	}

	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return res, false
		}
	}

	ctx, span := otel.Tracer("checker.dispatch").Start(ctx, "dispatch.deliver",
		trace.WithAttributes(attribute.String("contact.id", c.ID.String())),
	)
	defer span.End()

	msg := RenderMessage(c, u, d.Cfg.Location)
	sendCtx, cancel := d.sendContext(ctx)
	err := d.Channel.Send(sendCtx, c.Email, msg.Subject, msg.Body)
	cancel()

	res.Status = notification.StatusSent
	if err != nil {
		span.RecordError(err)
		res.Status = notification.StatusFailed
		log.Warn("notification send failed", zap.String("contact_email", c.Email), zap.Error(err))
	}
	mDeliveries.WithLabelValues(string(res.Status)).Inc()
	span.SetAttributes(attribute.String("delivery.status", string(res.Status)))

	// The entry is written even if the run is cancelled so a rerun cannot double-send.
	entry := &notification.LogEntry{
		UserID:    u.UserID,
		ContactID: uuid.NullUUID{UUID: c.ID, Valid: true},
		SentAt:    d.clock().Now(),
		Status:    res.Status,
	}
	if err := d.Log.Append(context.WithoutCancel(ctx), entry); err != nil {
		span.RecordError(err)
		mLogAppendErr.Inc()
		log.Error("append notification log", zap.String("contact_email", c.Email), zap.Error(err))
	}
	return res, true
}

func (d *Dispatcher) sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Cfg.SendTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.Cfg.SendTimeout)
}

func (d *Dispatcher) clock() notification.Clock {
	if d.Clock == nil {
		return SystemClock
	}
	return d.Clock
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
