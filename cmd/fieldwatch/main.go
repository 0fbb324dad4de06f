package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/logging"
)

// cli carries the loaded configuration from the root command's pre-run hook
// to the subcommands.
type cli struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fieldwatch: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "fieldwatch",
		Short: "Risk detection and alert triage for field survey responses",
		Long: `fieldwatch ingests survey responses from collection clients, runs the
risk rules over them and tracks the resulting alerts through
investigation and resolution.

Examples:
  fieldwatch serve
  fieldwatch seed --ingest --catalog-out ~/.config/fieldwatch/surveys.yaml
  fieldwatch detect --json
  fieldwatch alerts list --status active`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ~/.config/fieldwatch/config.toml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newDetectCmd(c),
		newSeedCmd(c),
		newExportCmd(c),
		newAlertsCmd(c),
	)
	return root
}

// load reads the configuration and initializes logging. Warnings go to
// stderr; they never stop the command.
func (c *cli) load(stderr io.Writer) error {
	var (
		result *config.LoadResult
		err    error
	)
	if c.configPath != "" {
		result, err = config.LoadFrom(config.ExpandHome(c.configPath))
	} else {
		result, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(stderr, "fieldwatch: config warning: %s\n", w)
	}

	c.cfg = result.Config
	if c.logLevel != "" {
		c.cfg.Logging.Level = c.logLevel
	}
	logging.Init(logging.Config{
		Level:  c.cfg.Logging.Level,
		Format: c.cfg.Logging.Format,
		Output: stderr,
	})
	return nil
}
