package cmd

import "github.com/spf13/cobra"

const skipWireAnnotation = "msd/skip-wire"

// cli carries state shared by every command. app is wired in
// PersistentPreRunE, once flags are parsed.
type cli struct {
	app     *app
	verbose bool
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "msd",
		Short:         "Multi-session daemon (msd): run many messaging bot sessions",
		Long:          "msd keeps many authenticated messaging sessions (bots) connected at once, persists their credentials across restarts, and lets operators pair, list, message through, and remove bots from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipWireAnnotation] != "" {
				return nil
			}
			app, err := wireApp(c.verbose)
			if err != nil {
				return err
			}
			c.app = app
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.close()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(c),
		newBotCmd(c),
		newKeygenCmd(),
	)

	return rootCmd
}
