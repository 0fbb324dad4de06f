package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/api"
	"github.com/nixlim/fieldwatch/internal/config"
)

// filterFlags are the alert list filters shared by several commands.
type filterFlags struct {
	status   string
	severity string
	typ      string
	surveyID string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.status, "status", "", "only alerts with this status (active, investigating, resolved)")
	cmd.Flags().StringVar(&f.severity, "severity", "", "only alerts with this severity (low, medium, high)")
	cmd.Flags().StringVar(&f.typ, "type", "", "only alerts of this rule type")
	cmd.Flags().StringVar(&f.surveyID, "survey", "", "only alerts of this survey")
}

func (f *filterFlags) filter() (alerts.Filter, error) {
	af := alerts.Filter{
		Status:   alerts.Status(f.status),
		Severity: alerts.Severity(f.severity),
		Type:     alerts.Type(f.typ),
		SurveyID: f.surveyID,
	}
	if af.Status != "" && !af.Status.Valid() {
		return af, fmt.Errorf("unknown status %q", f.status)
	}
	if af.Severity != "" && !af.Severity.Valid() {
		return af, fmt.Errorf("unknown severity %q", f.severity)
	}
	if af.Type != "" && !af.Type.Valid() {
		return af, fmt.Errorf("unknown alert type %q", f.typ)
	}
	return af, nil
}

func newExportCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export alerts as CSV or an alert's evidence bundle as JSON",
	}
	cmd.AddCommand(newExportCSVCmd(c), newExportEvidenceCmd(c))
	return cmd
}

func newExportCSVCmd(c *cli) *cobra.Command {
	var (
		filters filterFlags
		out     string
	)

	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Write the filtered alert list as CSV",
		Long: `Write the filtered alert list as CSV, newest first.

Examples:
  fieldwatch export csv > alerts.csv
  fieldwatch export csv --status resolved --out resolved.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.filter()
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.manager.List(cmd.Context(), f)
			if err != nil {
				return err
			}

			return withOutput(cmd.OutOrStdout(), out, func(w io.Writer) error {
				return api.WriteCSV(w, list)
			})
		},
	}

	filters.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "write to this path instead of stdout")
	return cmd
}

func newExportEvidenceCmd(c *cli) *cobra.Command {
	var (
		out    string
		stdout bool
	)

	cmd := &cobra.Command{
		Use:   "evidence <alert-id>",
		Short: "Write an alert's evidence bundle as JSON",
		Long: `Write the evidence bundle of one alert, including its notes,
escalations and conductor contacts. The bundle is written to
risk_evidence_<id>_<millis>.json in the current directory unless --out
or --stdout is given.

Examples:
  fieldwatch export evidence 6b1f0e2a-93c4-5d7e-8a10-4c2b9f7d3e61
  fieldwatch export evidence 6b1f0e2a-93c4-5d7e-8a10-4c2b9f7d3e61 --stdout`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			bundle, err := a.manager.ExportEvidence(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := bundle.JSON()
			if err != nil {
				return err
			}

			if stdout {
				_, err := cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			path := out
			if path == "" {
				path = bundle.Filename()
			}
			if err := os.WriteFile(config.ExpandHome(path), data, 0644); err != nil {
				return fmt.Errorf("writing evidence bundle: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "write to this path")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "write to stdout")
	return cmd
}

// withOutput runs fn against the file at path, or against stdout when path
// is empty.
func withOutput(stdout io.Writer, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(stdout)
	}
	f, err := os.Create(config.ExpandHome(path))
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
