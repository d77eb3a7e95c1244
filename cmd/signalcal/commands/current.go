package commands

import (
	"github.com/spf13/cobra"

	"signalcal/internal/app"
)

func newCurrentCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "current <family-code>",
		Short: "Show this week's signal word",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, a, err := g.load(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, a, args[0], cfg.Weeks)
			if err != nil {
				return err
			}
			return app.NewDispatcher(a).Dispatch(cmd.Context(), app.ActionCurrent, s, cmd.OutOrStdout())
		},
	}
}
