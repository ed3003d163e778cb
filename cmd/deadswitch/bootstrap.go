package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	config "github.com/NordCoder/Deadswitch/internal/config/deadswitch"
	"github.com/NordCoder/Deadswitch/internal/domain/notification"
	"github.com/NordCoder/Deadswitch/internal/lock"
	"github.com/NordCoder/Deadswitch/internal/obs"
	kafkax "github.com/NordCoder/Deadswitch/internal/repository/kafka"
	pg "github.com/NordCoder/Deadswitch/internal/repository/postgres"
	checker "github.com/NordCoder/Deadswitch/internal/services/inactivity-checker"
	"github.com/NordCoder/Deadswitch/internal/services/inactivity-checker/repo"
)

// app holds every long-lived dependency a command needs.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *pg.DB
	rdb    *redis.Client
	otel   *obs.OTel
	prod   *kafkax.Producer
	disp   *checker.Dispatcher
	checks *checker.CheckIns
}

func bootstrap(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: l}

	a.otel, err = obs.SetupOTel(ctx, cfg.AsOTELConfig())
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	}

	a.db, err = pg.NewDB(ctx, cfg.DB)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("db connect: %w", err)
	}
	l.Info("db connected")

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := a.rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		locker = lock.NewRedisLocker(a.rdb, cfg.Redis.KeyPrefix)
		l.Info("redis run lock enabled", zap.String("addr", cfg.Redis.Addr))
	}

	a.wire(locker)
	return a, nil
}

func (a *app) wire(locker lock.Locker) {
	cfg := a.cfg
	loc, _ := time.LoadLocation(cfg.Dispatch.Timezone)
	statusLoc, _ := time.LoadLocation(cfg.Dispatch.StatusTimezone)

	checkIns := pg.NewCheckInRepo(a.db)
	logStore := repo.NotificationLog{R: pg.NewNotificationLogRepo(a.db)}
	if cfg.Kafka.Enable {
		logStore.Outbox = pg.NewOutboxRepo(a.db)
		logStore.Tx = pg.NewTransactor(a.db, a.log)
	}

	var channel notification.EmailSender
	if cfg.SMTP.Addr != "" {
		channel = checker.NewMailer(checker.MailerConfig{
			Addr:     cfg.SMTP.Addr,
			From:     cfg.SMTP.From,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			UseTLS:   cfg.SMTP.UseTLS,
			Timeout:  cfg.SMTP.Timeout,
		}).WithLogger(a.log)
	} else {
		a.log.Warn("smtp.addr is empty, notifications will be skipped")
	}

	var limiter *rate.Limiter
	if cfg.Dispatch.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Dispatch.SendRate), 1)
	}

	a.disp = &checker.Dispatcher{
		CheckIns: checkIns,
		Roster:   pg.NewUserRepo(a.db),
		Dedup:    &checker.Deduplicator{Log: logStore, Window: cfg.Dispatch.DedupWindow},
		Contacts: &checker.ContactResolver{Contacts: pg.NewContactRepo(a.db)},
		Log:      logStore,
		Channel:  channel,
		Clock:    checker.SystemClock,
		Locker:   locker,
		Limiter:  limiter,
		Cfg: checker.Settings{
			Threshold:   cfg.Dispatch.Threshold,
			Workers:     cfg.Dispatch.Workers,
			SendTimeout: cfg.Dispatch.SendTimeout,
			RunTimeout:  cfg.Dispatch.RunTimeout,
			Location:    loc,
			LockKey:     cfg.Dispatch.LockKey,
			LockTTL:     cfg.Dispatch.LockTTL,
		},
		Logger: a.log.With(zap.String("component", "checker.dispatcher")),
	}

	a.checks = &checker.CheckIns{
		Repo:      checkIns,
		Clock:     checker.SystemClock,
		Threshold: cfg.Dispatch.Threshold,
		Location:  statusLoc,
		History:   cfg.Dispatch.StatusHistory,
	}
}

func (a *app) health(ctx context.Context) error {
	if err := a.db.Ping(ctx); err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if a.rdb != nil {
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *app) close() {
	if a.prod != nil {
		_ = a.prod.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.otel != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = a.otel.Shutdown(sctx)
		cancel()
	}
	_ = a.log.Sync()
}
