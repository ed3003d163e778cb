package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	config "github.com/NordCoder/Deadswitch/internal/config/deadswitch"
	"github.com/NordCoder/Deadswitch/internal/obs"
	kafkax "github.com/NordCoder/Deadswitch/internal/repository/kafka"
)

// newEnsureTopicCmd creates the events topic ahead of time, for deployments where
// brokers disallow auto creation.
func newEnsureTopicCmd(configPath *string) *cobra.Command {
	var (
		partitions int
		rf         int
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ensure-topic",
		Short: "Create the notification events topic if it is missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
				return config.ErrConfig("kafka.brokers and kafka.topic are required")
			}
			l, err := obs.NewLogger(cfg.AsLoggerConfig())
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = l.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := kafkax.EnsureTopic(ctx, cfg.Kafka.Brokers, kafkax.TopicSpec{
				Name:              cfg.Kafka.Topic,
				NumPartitions:     partitions,
				ReplicationFactor: rf,
				MaxWait:           timeout,
			}, l); err != nil {
				return fmt.Errorf("ensure topic %q: %w", cfg.Kafka.Topic, err)
			}
			l.Info("topic ready", zap.String("topic", cfg.Kafka.Topic), zap.Int("partitions", partitions))
			return nil
		},
	}
	cmd.Flags().IntVar(&partitions, "partitions", 1, "partition count for a new topic")
	cmd.Flags().IntVar(&rf, "replication-factor", 1, "replication factor for a new topic")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "overall deadline")
	return cmd
}
