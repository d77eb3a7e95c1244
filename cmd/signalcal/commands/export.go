package commands

import (
	"github.com/spf13/cobra"

	"signalcal/internal/app"
	"signalcal/internal/ics"
)

func newExportCmd(g *globals) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <family-code>",
		Short: "Write the schedule as an iCalendar (.ics) file",
		Long: `Write one all-day event per week to an iCalendar file that can be
imported into any calendar app. Use -o - to write to stdout.`,
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
			return dispatchTo(cmd, app.NewDispatcher(a), app.ActionDownload, s, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", ics.Filename, "Output file, or - for stdout")
	return cmd
}
