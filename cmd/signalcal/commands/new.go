package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"signalcal/internal/app"
	"signalcal/internal/familycode"
	"signalcal/internal/printer"
)

func newNewCmd(g *globals) *cobra.Command {
	var allowWeak bool

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new family code",
		Long: `Create a new random family code anchored on the current week and
preview its first weeks of signal words.

Write the code down and share it with family members in person. Anyone
holding it can produce the same words.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, a, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("allow-weak-entropy") {
				a.IDs.AllowWeak = allowWeak
			}

			s, issued, err := a.Fresh(cfg.Weeks)
			if err != nil {
				if errors.Is(err, familycode.ErrEntropyUnavailable) {
					return printer.Error(cmd.ErrOrStderr(), "Could not generate a family code",
						"The system's secure random source failed.", []string{
							"Try again in a moment",
							"Re-run with --allow-weak-entropy to accept a less unique code",
						})
				}
				return err
			}

			out := cmd.OutOrStdout()
			if issued.Degraded {
				printer.Warning(cmd.ErrOrStderr(), "This code was generated without secure randomness and may not be unique.\n")
			}
			fmt.Fprintln(out, "Your family code:")
			fmt.Fprintln(out)
			printer.Highlight(out, "  %s\n", s.Code())
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Share this code with family members in person only.")
			fmt.Fprintln(out)

			return app.NewDispatcher(a).Dispatch(cmd.Context(), app.ActionPreview, s, out)
		},
	}

	cmd.Flags().BoolVar(&allowWeak, "allow-weak-entropy", false, "Fall back to a non-cryptographic random source if the secure one fails")
	return cmd
}
