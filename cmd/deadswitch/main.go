package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "time/tzdata"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "deadswitch",
		Short:         "Check-in service that alerts emergency contacts when a user goes silent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "../config/deadswitch.yaml", "path to YAML config")

	root.AddCommand(
		newServeCmd(&configPath),
		newRunOnceCmd(&configPath),
		newHashTokenCmd(),
		newEnsureTopicCmd(&configPath),
	)
	return root
}
