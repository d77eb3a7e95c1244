package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"signalcal/internal/app"
	"signalcal/internal/printer"
)

const defaultPDFName = "family-signal-words.pdf"

func newPrintCmd(g *globals) *cobra.Command {
	var (
		output string
		pdf    bool
	)

	cmd := &cobra.Command{
		Use:   "print <family-code>",
		Short: "Render a printable page of the full schedule",
		Long: `Render the full schedule as a printable HTML page with the family code
in the header. With --pdf the page is printed to PDF using a local
headless Chromium.`,
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

			action := app.ActionPrint
			if pdf {
				action = app.ActionPrintPDF
				if output == "" {
					output = defaultPDFName
				}
				printer.Step(cmd.ErrOrStderr(), "Rendering PDF with headless Chromium\n")
			}

			err = dispatchTo(cmd, app.NewDispatcher(a), action, s, output)
			if err != nil && pdf && !errors.Is(err, app.ErrNoPrinter) {
				return printer.Error(cmd.ErrOrStderr(), "PDF rendering failed", err.Error(), []string{
					"Install Chrome or Chromium, or print the HTML page from a browser instead",
				})
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout for HTML, "+defaultPDFName+" for PDF)")
	cmd.Flags().BoolVar(&pdf, "pdf", false, "Print to PDF via headless Chromium")
	return cmd
}
