package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/config"
	"github.com/iliyamo/beat-license-registry/internal/logging"
	"github.com/iliyamo/beat-license-registry/internal/queue"
)

// newConsumeCommand runs the purchase consumer on its own, for
// deployments that set CONSUMER_ENABLED=false on the API servers.
func newConsumeCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume purchase notifications until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.ForEnv(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if dir == "" {
				dir = cfg.PurchaseLogDir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sink := &queue.FileSink{Dir: dir}
			c := &queue.Consumer{
				URL:     cfg.RabbitURL,
				Queue:   cfg.PurchaseQueue,
				Handler: sink.Handle,
				Logger:  logger.With(zap.String(logging.FieldComponent, "consumer")),
			}
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory for purchases.log (default PURCHASE_LOG_DIR)")
	return cmd
}
