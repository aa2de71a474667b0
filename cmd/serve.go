package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bnema/multisession/internal/adapters/notify"
	"github.com/bnema/multisession/internal/application"
	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/logging"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Restore every active bot and keep the sessions connected",
		Long:  "serve reconnects every bot recorded in the active list without requesting new pairing codes, then keeps the sessions alive until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			inboundLogger := a.logger.Named("inbound")
			manager := a.newManager(func(id domain.AccountID, msg domain.InboundMessage) {
				inboundLogger.Info("message received",
					logging.Account(id),
					zap.String("from", msg.From.String()),
					zap.String("message_id", msg.ID),
					zap.Int("bytes", len(msg.Content)),
				)
			})

			notifier := notify.Multi{
				notify.NewLog(a.logger.Named("status")),
				notify.NewTerminal(cmd.ErrOrStderr()),
			}
			report, err := application.NewBootstrap(a.active, a.credentials, manager, a.cfg.Bootstrap.SettleTimeout, a.logger.Named("bootstrap")).
				WithNotifier(notifier).
				Run(ctx)
			if err != nil {
				_ = a.shutdown(manager)
				return fmt.Errorf("restore sessions: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "serving %d bots (%d connected, %d failed, %d skipped)\n",
				len(report.Started), len(report.Connected), len(report.Failed), len(report.Skipped))

			<-ctx.Done()
			a.logger.Info("shutting down", zap.Int("connected", len(manager.ListConnected())))
			return a.shutdown(manager)
		},
	}
}
