package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	appLog "signalcal/internal/log"
	"signalcal/internal/printer"
	"signalcal/internal/web"
)

func newServeCmd(g *globals) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web interface",
		Long: `Serve the single-page web interface and its JSON API. The server keeps
no family codes: every request carries its code and the schedule is
regenerated on the spot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, a, err := g.load(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			appLog.Info("effective config",
				"listen", cfg.Listen,
				"timezone", a.Location.String(),
				"weeks", cfg.Weeks,
				"rotation", cfg.Rotation,
				"custom_words", cfg.WordsFile != "",
				"basic_auth", cfg.BasicAuth != nil,
			)

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case sig := <-sigCh:
					appLog.Info("signal received, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			c := cron.New(cron.WithLocation(a.Location))
			if _, err := c.AddFunc(cfg.Rotation, func() {
				appLog.Info("signal word rotation", "next", a.Rotation.Next(time.Now().In(a.Location)).Format(time.RFC3339))
			}); err != nil {
				return printer.Error(cmd.ErrOrStderr(), "Invalid rotation schedule", err.Error(), nil)
			}
			c.Start()
			defer c.Stop()

			err = web.NewServer(cfg, a).ListenAndServe(ctx)
			appLog.Info("signalcal exiting")
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
