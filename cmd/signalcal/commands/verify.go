package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"signalcal/internal/ics"
	"signalcal/internal/printer"
)

func newVerifyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <family-code> <file-or-url>",
		Short: "Check an exported calendar against a family code",
		Long: `Check that a calendar file, or a published calendar URL, carries the
words the family code produces. Useful after importing into a shared
calendar, or to confirm two family members hold the same code.

A calendar shorter than --weeks is accepted; events past --weeks are
reported.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, a, err := g.load(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, a, args[0], cfg.Weeks)
			if err != nil {
				return err
			}

			events, err := readCalendar(cmd, args[1])
			if err != nil {
				return printer.Error(cmd.ErrOrStderr(), "Could not read calendar", err.Error(), nil)
			}

			mismatches := ics.Verify(events, s.Schedule())
			if len(mismatches) == 0 {
				printer.Success(cmd.OutOrStdout(), "Calendar matches the family code (%d weeks checked)\n", len(events))
				return nil
			}

			lines := make([]string, 0, len(mismatches))
			for _, m := range mismatches {
				lines = append(lines, m.String())
			}
			return printer.Error(cmd.ErrOrStderr(), "Calendar does not match the family code",
				fmt.Sprintf("%d week(s) differ:", len(mismatches)), lines)
		},
	}
}

func readCalendar(cmd *cobra.Command, src string) ([]ics.ParsedEvent, error) {
	if ics.IsURL(src) {
		return ics.NewFetcher(nil).Fetch(cmd.Context(), src)
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ics.Parse(f)
}
