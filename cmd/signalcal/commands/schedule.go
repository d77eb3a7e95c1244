package commands

import (
	"github.com/spf13/cobra"

	"signalcal/internal/app"
)

func newScheduleCmd(g *globals) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "schedule <family-code>",
		Short: "Show the signal words for a family code",
		Long: `Show the weekly signal words for a family code. By default only the
first weeks are listed; use --all for the whole schedule.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, a, err := g.load(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, a, args[0], cfg.Weeks)
			if err != nil {
				return err
			}

			action := app.ActionPreview
			if all {
				action = app.ActionTable
			}
			return app.NewDispatcher(a).Dispatch(cmd.Context(), action, s, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "List every week instead of a preview")
	return cmd
}
