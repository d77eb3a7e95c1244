package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"signalcal/internal/app"
	"signalcal/internal/capture"
	"signalcal/internal/config"
	"signalcal/internal/familycode"
	"signalcal/internal/ics"
	appLog "signalcal/internal/log"
	"signalcal/internal/printer"
	"signalcal/internal/schedule"
	"signalcal/internal/words"
)

var versionString = "dev"

// SetVersionInfo sets the version string reported by --version.
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// Execute builds the command tree and runs it against os.Args.
func Execute() error {
	root := NewRootCmd()
	root.SilenceErrors = true
	root.SilenceUsage = true
	return root.Execute()
}

// globals are the persistent flags plus hooks tests use to pin the clock
// and the entropy source.
type globals struct {
	configPath string
	logLevel   string
	weeks      int

	now    func() time.Time
	strong io.Reader
}

// NewRootCmd returns a fresh command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&globals{})
}

func newRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:   "signalcal",
		Short: "Family signal words - weekly rotating verification words",
		Long: `signalcal turns a family code into a deterministic schedule of weekly
signal words. Everyone holding the same code sees the same word each week,
so a caller claiming to be family can be asked for it.

The family code is the only secret. Share it in person.`,
		Version: versionString,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.logLevel != "" {
				appLog.SetLevel(appLog.ParseLevel(g.logLevel))
			}
		},
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to YAML config file (created with defaults if missing)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().IntVar(&g.weeks, "weeks", 0, "Number of weeks to generate (default from config, 52)")

	root.AddCommand(
		newNewCmd(g),
		newScheduleCmd(g),
		newExportCmd(g),
		newPrintCmd(g),
		newCurrentCmd(g),
		newVerifyCmd(g),
		newServeCmd(g),
	)
	return root
}

// loadConfig reads the config file and applies flag overrides.
func (g *globals) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, printer.Error(cmd.ErrOrStderr(), "Failed to load configuration", err.Error(), []string{
			"Check the YAML syntax and field values in " + displayPath(g.configPath),
			"Unset any malformed " + config.EnvPrefix + "* environment variables",
		})
	}
	if g.logLevel == "" {
		appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	}
	if cmd.Flags().Changed("weeks") {
		if g.weeks < 1 || g.weeks > 520 {
			return nil, printer.Error(cmd.ErrOrStderr(), "Invalid --weeks value",
				fmt.Sprintf("--weeks must be between 1 and 520, got %d.", g.weeks), nil)
		}
		cfg.Weeks = g.weeks
	}
	return cfg, nil
}

// buildApp wires the packages together from cfg.
func (g *globals) buildApp(cmd *cobra.Command, cfg *config.Config) (*app.App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, printer.Error(cmd.ErrOrStderr(), "Invalid timezone", err.Error(), nil)
	}
	rotation, err := cfg.RotationSchedule()
	if err != nil {
		return nil, printer.Error(cmd.ErrOrStderr(), "Invalid rotation schedule", err.Error(), nil)
	}

	list := words.Default()
	if cfg.WordsFile != "" {
		list, err = words.Load(cfg.WordsFile)
		if err != nil {
			return nil, printer.Error(cmd.ErrOrStderr(), "Failed to load word list", err.Error(), []string{
				"Every family member must use the same word list, one lowercase word per line",
			})
		}
		appLog.Info("custom word list loaded", "path", cfg.WordsFile, "words", list.Len())
	}

	return &app.App{
		Generator: schedule.New(list),
		Exporter: ics.Exporter{
			ProductID:   cfg.Calendar.ProductID,
			Name:        cfg.Calendar.Name,
			Description: cfg.Calendar.Description,
			UIDDomain:   cfg.Calendar.UIDDomain,
		},
		IDs:      &familycode.Generator{Strong: g.strong, AllowWeak: cfg.AllowWeakEntropy},
		Location: loc,
		Rotation: rotation,
		Printer:  capture.NewPrinter(capture.PDFOptions{Timeout: cfg.PDFTimeout}),
		Now:      g.now,
	}, nil
}

// load is loadConfig followed by buildApp.
func (g *globals) load(cmd *cobra.Command) (*config.Config, *app.App, error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	a, err := g.buildApp(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, a, nil
}

// openSession decodes code, reporting format errors the way a family
// member can act on.
func openSession(cmd *cobra.Command, a *app.App, code string, weeks int) (app.Session, error) {
	s, err := a.Open(code, weeks)
	if err != nil {
		return app.Session{}, printer.Error(cmd.ErrOrStderr(), "Invalid family code", err.Error(), []string{
			"Check the code for typos; it looks like xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx-YYYYMMDD",
			"Run 'signalcal new' to create a new family code",
		})
	}
	return s, nil
}

// dispatchTo runs an action and writes its output to path, or to the
// command's stdout when path is empty or "-".
func dispatchTo(cmd *cobra.Command, d *app.Dispatcher, action string, s app.Session, path string) error {
	if path == "" || path == "-" {
		return d.Dispatch(cmd.Context(), action, s, cmd.OutOrStdout())
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := d.Dispatch(cmd.Context(), action, s, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	printer.Success(cmd.ErrOrStderr(), "Wrote %s\n", path)
	return nil
}

func displayPath(p string) string {
	if p == "" {
		return "the config file"
	}
	return p
}
