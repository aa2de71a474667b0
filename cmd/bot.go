package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/multisession/internal/adapters/notify"
	statusadapter "github.com/bnema/multisession/internal/adapters/render/status"
	"github.com/bnema/multisession/internal/application"
	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/ports"
)

func newBotCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Pair, list, message through, and remove bots",
	}

	cmd.AddCommand(
		newBotAddCmd(c),
		newBotListCmd(c),
		newBotSendCmd(c),
		newBotRemoveCmd(c),
	)

	return cmd
}

func newBotAddCmd(c *cli) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "add <number>",
		Short: "Pair a new bot with a phone number",
		Long:  "add requests a pairing code for the number, waits until it is entered on the phone, and records the bot so serve restores it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			id, err := domain.NormalizeAccountID(args[0])
			if err != nil {
				return err
			}

			manager := a.newManager(nil)
			defer func() { _ = a.shutdown(manager) }()

			pair := func(ctx context.Context, progress ports.Notifier) (domain.StatusEvent, error) {
				sup, err := manager.Connect(ctx, id, notify.Multi{progress, notify.NewLog(a.logger.Named("status"))})
				if err != nil {
					return domain.StatusEvent{}, err
				}
				return sup.Wait(ctx)
			}

			var status domain.StatusEvent
			if plain {
				status, err = pair(cmd.Context(), notify.NewTerminal(cmd.ErrOrStderr()))
			} else {
				status, err = runPairingSpinner(cmd.Context(), cmd.ErrOrStderr(), id, pair)
			}
			if err != nil {
				return fmt.Errorf("pair bot %s: %w", id, err)
			}
			if status.Kind != domain.StatusConnected {
				return fmt.Errorf("pair bot %s: %s", id, status.Reason)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Bot %s paired and connected (total connected: %d)\n", id, len(manager.ListConnected()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Print status lines instead of a spinner")

	return cmd
}

func newBotListCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered bots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			manager := a.newManager(nil)
			defer func() { _ = a.shutdown(manager) }()

			statuses, err := manager.Roster(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}

			rendered, err := a.statusRenderer(statuses, statusadapter.RenderOptions{})
			if err != nil {
				return fmt.Errorf("render bot list: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

func newBotSendCmd(c *cli) *cobra.Command {
	var (
		via  string
		to   string
		text string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a text message through a bot",
		Long:  "send connects the bot given with --via (or every active bot when --via is empty, using the first one that connects) and sends one text message.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			recipient, err := domain.NormalizeAccountID(to)
			if err != nil {
				return fmt.Errorf("recipient: %w", err)
			}

			manager := a.newManager(nil)
			defer func() { _ = a.shutdown(manager) }()

			ctx := cmd.Context()
			var (
				sender domain.AccountID
				ack    domain.Ack
			)
			if via == "" {
				_, err = application.NewBootstrap(a.active, a.credentials, manager, a.cfg.Bootstrap.SettleTimeout, a.logger.Named("bootstrap")).Run(ctx)
				if err != nil {
					return err
				}
				sender, ack, err = manager.SendViaAny(ctx, recipient, text)
			} else {
				sender, err = domain.NormalizeAccountID(via)
				if err != nil {
					return fmt.Errorf("sender: %w", err)
				}
				if err := connectExisting(ctx, a, manager, sender); err != nil {
					return err
				}
				ack, err = manager.SendVia(ctx, sender, recipient, text)
			}
			if err != nil {
				return fmt.Errorf("send message: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Sent %s via %s\n", ack.MessageID, sender)
			return nil
		},
	}
	cmd.Flags().StringVar(&via, "via", "", "Bot number to send from (default: first connected bot)")
	cmd.Flags().StringVar(&to, "to", "", "Recipient number")
	cmd.Flags().StringVar(&text, "text", "", "Message text")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

// connectExisting connects an already paired bot and waits until it is
// usable or the settle timeout runs out.
func connectExisting(ctx context.Context, a *app, manager *application.Manager, id domain.AccountID) error {
	sup, err := manager.Connect(ctx, id, notify.NewLog(a.logger.Named("status")), application.WithoutPairing())
	if err != nil {
		return err
	}

	waitCtx := ctx
	if a.cfg.Bootstrap.SettleTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, a.cfg.Bootstrap.SettleTimeout)
		defer cancel()
	}

	status, err := sup.Wait(waitCtx)
	switch {
	case errors.Is(err, domain.ErrInconsistentState):
		return fmt.Errorf("bot %s is not paired, run `msd bot add %s` first: %w", id, id, err)
	case err != nil:
		return fmt.Errorf("connect bot %s: %w", id, err)
	case status.Kind != domain.StatusConnected:
		return fmt.Errorf("connect bot %s: %s", id, status.Reason)
	}
	return nil
}

func newBotRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <number>",
		Aliases: []string{"rm", "logout"},
		Short:   "Forget a bot: delete its credentials and drop it from the active list",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			id, err := domain.NormalizeAccountID(args[0])
			if err != nil {
				return err
			}

			manager := a.newManager(nil)
			defer func() { _ = a.shutdown(manager) }()

			if err := manager.Logout(cmd.Context(), id); err != nil {
				return fmt.Errorf("remove bot %s: %w", id, err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed bot %s\n", id)
			return nil
		},
	}
}
