package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NordCoder/Deadswitch/internal/obs"
	"github.com/NordCoder/Deadswitch/internal/obs/retry"
	"github.com/NordCoder/Deadswitch/internal/outbox"
	kafkax "github.com/NordCoder/Deadswitch/internal/repository/kafka"
	pg "github.com/NordCoder/Deadswitch/internal/repository/postgres"
	httpapi "github.com/NordCoder/Deadswitch/internal/services/http-api"
	checker "github.com/NordCoder/Deadswitch/internal/services/inactivity-checker"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the inactivity check on a schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	l := a.log
	l.Info("starting deadswitch",
		zap.String("env", cfg.App.Env),
		zap.String("ver", cfg.App.Version),
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.Duration("interval", cfg.Dispatch.Interval),
		zap.Bool("kafka", cfg.Kafka.Enable),
	)

	if cfg.Trigger.TokenHash == "" {
		l.Warn("trigger.token_hash is empty, /v1 routes are unauthenticated")
	}

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, a.health, l)

	handler := httpapi.NewHandler(httpapi.Deps{
		Job:         a.disp,
		CheckIns:    a.checks,
		Contacts:    pg.NewContactRepo(a.db),
		TokenHash:   cfg.Trigger.TokenHash,
		CORSOrigins: cfg.Server.CORSOrigins,
		Health:      a.health,
	}, l)
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := checker.NewRunner(l, a.disp, cfg.Dispatch.Interval).Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.Kafka.Enable {
		runner := a.startOutbox(gctx)
		g.Go(func() error {
			<-gctx.Done()
			runner.Wait()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		l.Info("shutdown signal")
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		_ = ms.Shutdown(shCtx)
		return nil
	})

	err := g.Wait()
	l.Info("bye")
	return err
}

func (a *app) startOutbox(ctx context.Context) *outbox.Runner {
	kc := a.cfg.Kafka
	if err := kafkax.EnsureTopic(ctx, kc.Brokers, kafkax.TopicSpec{
		Name:    kc.Topic,
		MaxWait: 5 * time.Second,
	}, a.log); err != nil {
		// producer auto-creates the topic on first write
		a.log.Warn("ensure topic", zap.Error(err))
	}

	a.prod = kafkax.NewProducer(kc.Brokers, kc.Topic).WithLogger(a.log)
	events := kafkax.NewNotificationEventsKafka(a.prod)

	runner := outbox.NewOutboxRunner(
		a.log,
		pg.NewOutboxRepo(a.db),
		outbox.MakeGlobalOutboxHandler(events, retry.OutboxPolicy(a.log)),
		kc.OutboxWorkers,
		kc.OutboxBatch,
		kc.OutboxWait,
		kc.OutboxInProgressTTL,
	).WithMaxAttempts(kc.OutboxMaxAttempts).WithRetention(kc.OutboxRetention)
	runner.Start(ctx)
	a.log.Info("outbox publisher started", zap.Strings("brokers", kc.Brokers), zap.String("topic", kc.Topic))
	return runner
}
