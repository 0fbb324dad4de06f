package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nixlim/fieldwatch/internal/config"
	"github.com/nixlim/fieldwatch/internal/ingest"
	"github.com/nixlim/fieldwatch/internal/seed"
	"github.com/nixlim/fieldwatch/internal/survey"
)

type seedOptions struct {
	seed         uint64
	conductors   int
	perConductor int
	noAnomalies  bool
	out          string
	catalogOut   string
	ingest       bool
	start        string
}

func newSeedCmd(c *cli) *cobra.Command {
	def := seed.DefaultOptions()
	opts := seedOptions{
		seed:         def.Seed,
		conductors:   def.Conductors,
		perConductor: def.ResponsesPerConductor,
	}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate a deterministic demo dataset",
		Long: `Generate a demo survey catalog and raw responses. Unless --no-anomalies
is given, one scenario per risk rule is planted in the data. The same
flags, --start included, always produce the same dataset.

With no output flags the raw responses are written to stdout as JSON.
Without --start the data begins at 08:00 UTC on the previous day, so it
falls inside the storage retention window.

Examples:
  fieldwatch seed > responses.json
  fieldwatch seed --ingest --catalog-out ~/.config/fieldwatch/surveys.yaml
  fieldwatch seed --seed 7 --conductors 10 --out /tmp/batch.json
  fieldwatch seed --start 2026-03-02T08:00:00Z > reproducible.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := seedStart(opts.start, time.Now())
			if err != nil {
				return err
			}
			ds := seed.Generate(seed.Options{
				Seed:                  opts.seed,
				Start:                 start,
				Conductors:            opts.conductors,
				ResponsesPerConductor: opts.perConductor,
				Anomalies:             !opts.noAnomalies,
			})

			if opts.catalogOut != "" {
				if err := writeCatalog(config.ExpandHome(opts.catalogOut), ds.Surveys); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d surveys to %s\n", len(ds.Surveys), opts.catalogOut)
			}

			if opts.out != "" {
				data, err := json.MarshalIndent(ds.Responses, "", "  ")
				if err != nil {
					return fmt.Errorf("encoding responses: %w", err)
				}
				if err := os.WriteFile(config.ExpandHome(opts.out), data, 0644); err != nil {
					return fmt.Errorf("writing responses: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d responses to %s\n", len(ds.Responses), opts.out)
			}

			if opts.ingest {
				n, err := ingestDataset(cmd, c.cfg, ds.Responses)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %d of %d responses\n", n, len(ds.Responses))
			}

			if opts.out == "" && opts.catalogOut == "" && !opts.ingest {
				return writeJSON(cmd.OutOrStdout(), ds.Responses)
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&opts.seed, "seed", opts.seed, "random seed")
	cmd.Flags().IntVar(&opts.conductors, "conductors", opts.conductors, "number of conductors")
	cmd.Flags().IntVar(&opts.perConductor, "per-conductor", opts.perConductor, "responses per conductor")
	cmd.Flags().BoolVar(&opts.noAnomalies, "no-anomalies", false, "generate only clean responses")
	cmd.Flags().StringVar(&opts.out, "out", "", "write the raw responses (JSON) to this path")
	cmd.Flags().StringVar(&opts.catalogOut, "catalog-out", "", "write the survey catalog (YAML) to this path")
	cmd.Flags().BoolVar(&opts.ingest, "ingest", false, "normalize the responses and store them")
	cmd.Flags().StringVar(&opts.start, "start", "", "first submission time (RFC 3339)")
	return cmd
}

func seedStart(flag string, now time.Time) (time.Time, error) {
	if flag == "" {
		y, m, d := now.UTC().AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 8, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(time.RFC3339, flag)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --start: %w", err)
	}
	return t, nil
}

func writeCatalog(path string, surveys []survey.Survey) error {
	data, err := yaml.Marshal(struct {
		Surveys []survey.Survey `yaml:"surveys"`
	}{surveys})
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating catalog directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}
	return nil
}

// ingestDataset normalizes raws and stores them, reporting how many were
// new. Malformed entries are reported on stderr and skipped.
func ingestDataset(cmd *cobra.Command, cfg config.Config, raws []ingest.RawResponse) (int, error) {
	responses, diags := ingest.Normalize(raws)
	for _, d := range diags {
		if d.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", d)
		}
	}

	a, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return 0, err
	}
	defer a.Close()

	n, err := a.store.PutResponses(cmd.Context(), responses)
	if err != nil {
		return 0, fmt.Errorf("storing responses: %w", err)
	}
	return n, nil
}
